package metrics

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	registry = prometheus.NewRegistry()

	launchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalreset",
		Name:      "launch_attempts_total",
		Help:      "Total number of daemon launches attempted.",
	}, []string{"daemon"})

	verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalreset",
		Name:      "verifications_total",
		Help:      "Startup verification outcomes per daemon.",
	}, []string{"daemon", "outcome"})

	signals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalreset",
		Name:      "signals_total",
		Help:      "Signals successfully delivered to supervised processes.",
	}, []string{"signal"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "portalreset",
		Name:      "build_info",
		Help:      "Build metadata for the running portal-reset binary.",
	}, []string{"go_version", "vcs_revision", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(launchAttempts, verifications, signals, buildInfo)
}

// Registry returns the Prometheus registry containing all portal-reset metrics.
func Registry() *prometheus.Registry {
	return registry
}

// IncrementLaunch records a launch attempt for a daemon.
func IncrementLaunch(daemon string) {
	if daemon == "" {
		return
	}
	launchAttempts.WithLabelValues(daemon).Inc()
}

// ObserveVerification records the outcome of a startup verification.
func ObserveVerification(daemon, outcome string) {
	if daemon == "" || outcome == "" {
		return
	}
	verifications.WithLabelValues(daemon, outcome).Inc()
}

// IncrementSignal records a delivered signal, e.g. "SIGTERM".
func IncrementSignal(signal string) {
	if signal == "" {
		return
	}
	signals.WithLabelValues(signal).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs_revision": "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// Summary flattens the counters into "name{labels}=value" pairs sorted by
// name, suitable for a closing log line. Build info is omitted.
func Summary() ([]string, error) {
	families, err := registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var out []string
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		name := strings.TrimPrefix(mf.GetName(), "portalreset_")
		for _, m := range mf.GetMetric() {
			out = append(out, fmt.Sprintf("%s%s=%g", name, labelString(m.GetLabel()), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// BuildInfo returns the labels of the build info gauge as gathered from the
// registry. The map is empty until EmitBuildInfo has run.
func BuildInfo() (map[string]string, error) {
	families, err := registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	labels := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "portalreset_build_info" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, p := range m.GetLabel() {
				labels[p.GetName()] = p.GetValue()
			}
		}
	}
	return labels, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Reset clears every counter. Tests use it to isolate runs.
func Reset() {
	launchAttempts.Reset()
	verifications.Reset()
	signals.Reset()
}

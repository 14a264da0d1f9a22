package main

import (
	"github.com/Paintersrp/portalreset/internal/cli"
	"github.com/Paintersrp/portalreset/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}

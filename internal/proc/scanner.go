// Package proc discovers and signals processes owned by the current user.
//
// Discovery walks the kernel process table under /proc. Entries that vanish or
// cannot be read mid-scan are treated as not matching; a scan never fails.
package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const deletedSuffix = " (deleted)"

// Record identifies a process observed during a single scan. PIDs are reused by
// the kernel, so records must not be kept across a terminate/respawn cycle.
type Record struct {
	PID  int
	Name string
}

// Filter selects processes during a scan.
type Filter struct {
	// Name is matched against the command name.
	Name string
	// Exact requires the command name to equal Name instead of containing it.
	Exact bool
	// Deep also matches Name against the executable link and argv[0]. The
	// kernel truncates command names to 15 bytes, so long daemon names are
	// only visible through these.
	Deep bool
	// Args, when set, must be contained in the space-joined argument vector.
	Args string
}

// Finder is implemented by Scanner and by test doubles.
type Finder interface {
	Find(f Filter) []Record
}

// Scanner walks a procfs mount.
type Scanner struct {
	root string
	self int
	uid  uint32
}

// NewScanner returns a scanner over the host's /proc for the calling user.
func NewScanner() *Scanner {
	return NewScannerAt(procfs.DefaultMountPoint)
}

// NewScannerAt returns a scanner rooted at an alternative procfs mount.
func NewScannerAt(root string) *Scanner {
	return &Scanner{
		root: root,
		self: os.Getpid(),
		uid:  uint32(os.Getuid()),
	}
}

// Find returns every process owned by the caller that matches f. The caller's
// own process is never included.
func (s *Scanner) Find(f Filter) []Record {
	fs, err := procfs.NewFS(s.root)
	if err != nil {
		return nil
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil
	}

	var out []Record
	for _, p := range procs {
		if p.PID <= 0 || p.PID == s.self {
			continue
		}
		if !s.owned(p.PID) {
			continue
		}
		if zombie(p) {
			continue
		}

		comm, err := p.Comm()
		if err != nil {
			continue
		}
		argv, _ := p.CmdLine()
		exe, _ := p.Executable()
		exe = strings.TrimSuffix(exe, deletedSuffix)

		if !f.matches(comm, exe, argv) {
			continue
		}
		out = append(out, Record{PID: p.PID, Name: recordName(comm, exe, argv)})
	}
	return out
}

func (s *Scanner) owned(pid int) bool {
	var st unix.Stat_t
	if err := unix.Stat(filepath.Join(s.root, strconv.Itoa(pid)), &st); err != nil {
		return false
	}
	return st.Uid == s.uid
}

// zombie reports exited-but-unreaped entries; they keep their names in the
// table and would otherwise look alive.
func zombie(p procfs.Proc) bool {
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return stat.State == "Z"
}

func (f Filter) matches(comm, exe string, argv []string) bool {
	if f.Args != "" && !strings.Contains(strings.Join(argv, " "), f.Args) {
		return false
	}
	if f.Exact {
		return comm == f.Name
	}
	if strings.Contains(comm, f.Name) {
		return true
	}
	if !f.Deep {
		return false
	}
	if exe != "" && strings.Contains(exe, f.Name) {
		return true
	}
	return len(argv) > 0 && strings.Contains(argv[0], f.Name)
}

func recordName(comm, exe string, argv []string) string {
	if exe != "" {
		return filepath.Base(exe)
	}
	if len(argv) > 0 && argv[0] != "" {
		return filepath.Base(argv[0])
	}
	return comm
}

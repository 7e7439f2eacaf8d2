package x86patch

import "sync"

// Fault describes a failure inside a protection-change scope: the memory
// that was being patched and the error the OS returned.
type Fault struct {
	Op   string
	Addr uintptr
	Size uintptr
	Err  error
}

// FaultReporter receives Faults. The package never logs on its own;
// diagnostics go through this interface only. See the faultlog package for
// a ready-made implementation.
type FaultReporter interface {
	ReportFault(Fault)
}

var (
	faultMu       sync.RWMutex
	faultReporter FaultReporter
)

// SetFaultReporter installs the fault collaborator. A nil reporter
// discards faults.
func SetFaultReporter(r FaultReporter) {
	faultMu.Lock()
	faultReporter = r
	faultMu.Unlock()
}

func reportFault(f Fault) {
	faultMu.RLock()
	r := faultReporter
	faultMu.RUnlock()
	if r != nil {
		r.ReportFault(f)
	}
}

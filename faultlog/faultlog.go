// Package faultlog is a FaultReporter that writes faults to a colored
// terminal logger. Install it with x86patch.SetFaultReporter during program
// startup; the root package stays silent without it.
package faultlog

import (
	"fmt"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"x86patch"
)

type Reporter struct {
	log *logger.Logger
}

func New() *Reporter {
	return &Reporter{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "x86patch")),
	}
}

func (r *Reporter) ReportFault(f x86patch.Fault) {
	r.log.Warn("fault in ", f.Op, " at ", fmt.Sprintf("%#x+%#x", f.Addr, f.Size), ": ", f.Err)
}

package faultlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"x86patch"
)

func TestReporter(t *testing.T) {
	assert := assert.New(t)

	r := New()
	assert.NotNil(r)

	var _ x86patch.FaultReporter = r

	assert.NotPanics(func() {
		r.ReportFault(x86patch.Fault{
			Op:   "restore-protection",
			Addr: 0x401000,
			Size: 16,
			Err:  errors.New("mprotect: permission denied"),
		})
	})
}

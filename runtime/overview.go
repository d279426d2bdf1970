package runtime

import (
	"fmt"
	"time"

	"github.com/pithecene-io/deliorder/types"
)

// Overview is the confirmation summary shown before a package runs.
type Overview struct {
	SerialNumber string
	Author       string
	ValidUntil   time.Time
	// Lines holds one numbered description per order.
	Lines []string
	// StartPath is the first order's execution path; EndPath the last's.
	StartPath string
	EndPath   string
}

// BuildOverview describes pkg for confirmation.
func BuildOverview(pkg *types.Package) Overview {
	ov := Overview{
		SerialNumber: pkg.SerialNumber,
		Author:       pkg.Author,
		ValidUntil:   pkg.ValidUntil,
		Lines:        make([]string, 0, len(pkg.Orders)),
	}
	for i, o := range pkg.Orders {
		ov.Lines = append(ov.Lines, fmt.Sprintf("%d. %s", i+1, types.Describe(o)))
	}
	if n := len(pkg.Orders); n > 0 {
		ov.StartPath = pkg.Orders[0].Target().ExecutionPath
		ov.EndPath = pkg.Orders[n-1].Target().ExecutionPath
	}
	return ov
}

// Remaining returns how long the package stays live after now, or zero.
func (ov Overview) Remaining(now time.Time) time.Duration {
	if d := ov.ValidUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

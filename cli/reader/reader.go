package reader

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"time"

	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/storage"
	"github.com/pithecene-io/deliorder/types"
)

// ErrNoLedger is returned by Executions when no ledger is configured.
var ErrNoLedger = errors.New("no ledger configured")

// Reader answers read-only CLI queries against a registry and an optional
// outcome ledger.
type Reader struct {
	reg    registry.Registry
	ledger *storage.Ledger
	now    func() time.Time
}

// New creates a reader. ledger may be nil; now defaults to time.Now.
func New(reg registry.Registry, ledger *storage.Ledger, now func() time.Time) *Reader {
	if now == nil {
		now = time.Now
	}
	return &Reader{reg: reg, ledger: ledger, now: now}
}

// History lists author's packages, newest first unless oldestFirst.
func (r *Reader) History(ctx context.Context, author string, oldestFirst bool) ([]HistoryItem, error) {
	pkgs, err := r.reg.History(ctx, author)
	if err != nil {
		return nil, err
	}
	items := NewHistoryItems(pkgs, r.now())
	if oldestFirst {
		slices.Reverse(items)
	}
	return items, nil
}

// Executions lists the recorded outcomes for serial, newest run first.
func (r *Reader) Executions(ctx context.Context, serial string) ([]LedgerItem, error) {
	if r.ledger == nil {
		return nil, ErrNoLedger
	}
	entries, err := r.ledger.Entries(ctx, serial)
	if errors.Is(err, storage.ErrNoEntries) {
		return []LedgerItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return NewLedgerItems(entries), nil
}

// NewRunView summarizes a finished run.
func NewRunView(result *runtime.RunResult) *RunView {
	succeeded, failed, rejected := result.Counts()
	view := &RunView{
		ExecutionID: result.ExecutionID,
		Status:      string(runtime.DetermineStatus(result)),
		Succeeded:   succeeded,
		Failed:      failed,
		Rejected:    rejected,
		DurationMs:  result.Duration.Milliseconds(),
		Outcomes:    NewOutcomeItems(result.Outcomes),
	}
	if result.Package != nil {
		view.SerialNumber = result.Package.SerialNumber
		view.Author = result.Package.Author
	}
	return view
}

// NewOutcomeItems converts outcomes with one-based indexes, as shown to
// users.
func NewOutcomeItems(outcomes []types.ExecutionOutcome) []OutcomeItem {
	items := make([]OutcomeItem, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, OutcomeItem{
			Index:   o.OrderIndex + 1,
			Action:  string(o.Action),
			State:   string(o.State),
			Message: o.Message,
		})
	}
	return items
}

// NewOverviewView renders ov as seen at now.
func NewOverviewView(ov runtime.Overview, now time.Time) *OverviewView {
	return &OverviewView{
		SerialNumber: ov.SerialNumber,
		Author:       ov.Author,
		ValidUntil:   ov.ValidUntil,
		Remaining:    formatRemaining(ov.Remaining(now)),
		StartPath:    ov.StartPath,
		EndPath:      ov.EndPath,
		Orders:       ov.Lines,
	}
}

// NewHistoryItems converts packages in the order given.
func NewHistoryItems(pkgs []*types.Package, now time.Time) []HistoryItem {
	items := make([]HistoryItem, 0, len(pkgs))
	for _, p := range pkgs {
		state := "live"
		remaining := p.ValidUntil.Sub(now)
		if p.ExpiredAt(now) {
			state = string(types.PackageExpired)
			remaining = 0
		}
		items = append(items, HistoryItem{
			SerialNumber: p.SerialNumber,
			State:        state,
			Orders:       len(p.Orders),
			CreatedAt:    p.CreatedAt,
			ValidUntil:   p.ValidUntil,
			Remaining:    formatRemaining(remaining),
		})
	}
	return items
}

// NewLedgerItems converts ledger entries.
func NewLedgerItems(entries []storage.Entry) []LedgerItem {
	items := make([]LedgerItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, LedgerItem{
			Ts:          e.Ts,
			ExecutionID: e.ExecutionID,
			Index:       e.OrderIndex + 1,
			Action:      string(e.Action),
			State:       string(e.State),
			Message:     e.Message,
		})
	}
	return items
}

// NewSubmitView describes a sealed package. serial is empty for a dry run.
func NewSubmitView(pkg *types.Package, serial string) *SubmitView {
	ov := runtime.BuildOverview(pkg)
	v := &SubmitView{
		SerialNumber: serial,
		Author:       pkg.Author,
		CreatedAt:    pkg.CreatedAt,
		ValidUntil:   pkg.ValidUntil,
		Orders:       ov.Lines,
	}
	if serial != "" {
		v.DeepLink = registry.DeepLink(serial)
	}
	return v
}

// NewPathCheckItem runs path through g.
func NewPathCheckItem(g *guard.Guard, path string) PathCheckItem {
	item := PathCheckItem{Path: path}
	err := g.Check(path)
	var violation *types.CriticalPathViolation
	if errors.As(err, &violation) {
		item.Protected = true
		item.Entry = violation.Entry
	}
	return item
}

// NewOrderCheckItems validates each record and, when g is non-nil, runs
// the built order through the guard. Records past the package limit are
// marked invalid.
func NewOrderCheckItems(recs []types.OrderRecord, g *guard.Guard) []OrderCheckItem {
	items := make([]OrderCheckItem, 0, len(recs))
	for i, rec := range recs {
		item := OrderCheckItem{
			Index:  i + 1,
			Action: rec.Action,
			Target: filepath.Join(rec.ExecutionPath, rec.AttachmentName),
			Valid:  true,
		}
		o, err := compose.Build(rec)
		if err == nil && g != nil {
			err = g.CheckOrder(o)
		}
		if err == nil && i >= types.MaxOrders {
			err = compose.ErrMaxOrderLimit
		}
		if err != nil {
			item.Valid = false
			item.Error = err.Error()
		}
		items = append(items, item)
	}
	return items
}

// formatRemaining renders whole seconds, or "-" once nothing is left.
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Truncate(time.Second).String()
}

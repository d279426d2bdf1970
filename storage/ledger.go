package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/types"
)

// LedgerDataset is the lode dataset ID holding execution outcomes.
const LedgerDataset = "deliorder_outcomes"

// ErrNoEntries is returned when the ledger holds nothing for a query.
var ErrNoEntries = errors.New("no ledger entries found")

// Entry is one ledger record: the outcome of a single order in one run.
type Entry struct {
	Day          string           `json:"day"`
	SerialNumber string           `json:"serial_number"`
	ExecutionID  string           `json:"execution_id"`
	Author       string           `json:"author,omitempty"`
	OrderIndex   int              `json:"order_index"`
	Action       types.Action     `json:"action"`
	State        types.OrderState `json:"state"`
	Succeeded    bool             `json:"succeeded"`
	Message      string           `json:"message"`
	Ts           string           `json:"ts"`
}

// Ledger appends run outcomes to a Hive-partitioned lode dataset
// (day/serial_number).
type Ledger struct {
	dataset   lode.Dataset
	collector *metrics.Collector
}

// NewLedger creates a ledger over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLedger(factory lode.StoreFactory, collector *metrics.Collector) (*Ledger, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(LedgerDataset),
		factory,
		lode.WithHiveLayout("day", "serial_number"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapError(err, "init", LedgerDataset)
	}
	return &Ledger{dataset: ds, collector: collector}, nil
}

// NewFSLedger creates a ledger rooted at a local directory, creating the
// directory when missing.
func NewFSLedger(root string, collector *metrics.Collector) (*Ledger, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, WrapError(err, "init", root)
	}
	return NewLedger(lode.NewFSFactory(root), collector)
}

// NewS3Ledger creates a ledger stored in S3.
func NewS3Ledger(ctx context.Context, cfg S3Config, collector *metrics.Collector) (*Ledger, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: cfg.Bucket,
			Prefix: cfg.Prefix,
		})
	}
	return NewLedger(factory, collector)
}

// Append writes one entry per outcome of result in a single snapshot.
func (l *Ledger) Append(ctx context.Context, result *runtime.RunResult) error {
	if result == nil || len(result.Outcomes) == 0 {
		return nil
	}

	started := result.StartedAt.UTC()
	var serial, author string
	if result.Package != nil {
		serial = result.Package.SerialNumber
		author = result.Package.Author
	}

	records := make([]any, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		records = append(records, entryRecord(Entry{
			Day:          started.Format(time.DateOnly),
			SerialNumber: serial,
			ExecutionID:  result.ExecutionID,
			Author:       author,
			OrderIndex:   o.OrderIndex,
			Action:       o.Action,
			State:        o.State,
			Succeeded:    o.Succeeded,
			Message:      o.Message,
			Ts:           started.Format(time.RFC3339Nano),
		}))
	}

	if _, err := l.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		l.collector.IncLedgerWriteFailure()
		return WrapError(err, "ledger", fmt.Sprintf("serial_number=%s", serial))
	}
	l.collector.IncLedgerWriteSuccess()
	return nil
}

// Entries returns every ledger entry for serial, newest run first and in
// order index within a run. Returns ErrNoEntries when there are none.
func (l *Ledger) Entries(ctx context.Context, serial string) ([]Entry, error) {
	snapshots, err := l.dataset.Snapshots(ctx)
	if err != nil {
		return nil, WrapError(err, "ledger", LedgerDataset+"/snapshots")
	}

	var entries []Entry
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "serial_number", serial) {
			continue
		}

		data, err := l.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapError(err, "ledger", fmt.Sprintf("%s/snapshot/%s", LedgerDataset, snap.ID))
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			e := entryFromRecord(record)
			if e.SerialNumber != serial {
				continue
			}
			entries = append(entries, e)
		}
	}

	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	return entries, nil
}

func entryRecord(e Entry) map[string]any {
	return map[string]any{
		"day":           e.Day,
		"serial_number": e.SerialNumber,
		"execution_id":  e.ExecutionID,
		"author":        e.Author,
		"order_index":   e.OrderIndex,
		"action":        string(e.Action),
		"state":         string(e.State),
		"succeeded":     e.Succeeded,
		"message":       e.Message,
		"ts":            e.Ts,
	}
}

func entryFromRecord(r map[string]any) Entry {
	succeeded, _ := r["succeeded"].(bool)
	return Entry{
		Day:          toString(r["day"]),
		SerialNumber: toString(r["serial_number"]),
		ExecutionID:  toString(r["execution_id"]),
		Author:       toString(r["author"]),
		OrderIndex:   toInt(r["order_index"]),
		Action:       types.Action(toString(r["action"])),
		State:        types.OrderState(toString(r["state"])),
		Succeeded:    succeeded,
		Message:      toString(r["message"]),
		Ts:           toString(r["ts"]),
	}
}

// snapshotMatches checks if any file in snap lies under the key=value
// partition. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so serial 12345 never matches 123456.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Package metrics provides per-process counters for package execution.
//
// The Collector accumulates counters across runs. It is a leaf package with
// no internal dependencies; action names are plain strings so it does not
// need the types package.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Orders
	OrdersSucceeded int64
	OrdersFailed    int64
	OrdersRejected  int64
	OrdersByAction  map[string]int64

	// Registry
	RetrieveSuccess  int64
	RetrieveExpired  int64
	RetrieveNotFound int64
	RetrieveFailure  int64
	AuthRefreshes    int64

	// Storage
	PayloadUploads        int64
	PayloadUploadFailures int64
	LedgerWriteSuccess    int64
	LedgerWriteFailure    int64

	// Notifications
	NotifySuccess int64
	NotifyFailure int64

	// Dimensions (informational, set at construction)
	Registry string
	Platform string
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	ordersSucceeded int64
	ordersFailed    int64
	ordersRejected  int64
	ordersByAction  map[string]int64

	retrieveSuccess  int64
	retrieveExpired  int64
	retrieveNotFound int64
	retrieveFailure  int64
	authRefreshes    int64

	payloadUploads        int64
	payloadUploadFailures int64
	ledgerWriteSuccess    int64
	ledgerWriteFailure    int64

	notifySuccess int64
	notifyFailure int64

	registry string
	platform string
}

// NewCollector creates a Collector labelled with the registry backend and
// guard platform.
func NewCollector(registry, platform string) *Collector {
	return &Collector{
		ordersByAction: make(map[string]int64),
		registry:       registry,
		platform:       platform,
	}
}

// inc applies fn under the lock. No-op on a nil collector.
func (c *Collector) inc(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() { c.inc(func() { c.runsStarted++ }) }

// IncRunCompleted records a run in which every order succeeded.
func (c *Collector) IncRunCompleted() { c.inc(func() { c.runsCompleted++ }) }

// IncRunFailed records a run with at least one failed or rejected order.
func (c *Collector) IncRunFailed() { c.inc(func() { c.runsFailed++ }) }

// --- Orders ---

// IncOrderSucceeded records a handler success.
func (c *Collector) IncOrderSucceeded(action string) {
	c.inc(func() {
		c.ordersSucceeded++
		c.ordersByAction[action]++
	})
}

// IncOrderFailed records a handler failure.
func (c *Collector) IncOrderFailed(action string) {
	c.inc(func() {
		c.ordersFailed++
		c.ordersByAction[action]++
	})
}

// IncOrderRejected records a guard rejection. The handler never ran.
func (c *Collector) IncOrderRejected(action string) {
	c.inc(func() {
		c.ordersRejected++
		c.ordersByAction[action]++
	})
}

// --- Registry ---

// IncRetrieveSuccess records a live package retrieval.
func (c *Collector) IncRetrieveSuccess() { c.inc(func() { c.retrieveSuccess++ }) }

// IncRetrieveExpired records a retrieval refused for expiry.
func (c *Collector) IncRetrieveExpired() { c.inc(func() { c.retrieveExpired++ }) }

// IncRetrieveNotFound records a retrieval of an unknown serial.
func (c *Collector) IncRetrieveNotFound() { c.inc(func() { c.retrieveNotFound++ }) }

// IncRetrieveFailure records any other retrieval error.
func (c *Collector) IncRetrieveFailure() { c.inc(func() { c.retrieveFailure++ }) }

// IncAuthRefresh records an access-token refresh.
func (c *Collector) IncAuthRefresh() { c.inc(func() { c.authRefreshes++ }) }

// --- Storage ---

// IncPayloadUpload records an uploaded create payload.
func (c *Collector) IncPayloadUpload() { c.inc(func() { c.payloadUploads++ }) }

// IncPayloadUploadFailure records a failed payload upload.
func (c *Collector) IncPayloadUploadFailure() { c.inc(func() { c.payloadUploadFailures++ }) }

// IncLedgerWriteSuccess records a successful ledger write (per call, not per record).
func (c *Collector) IncLedgerWriteSuccess() { c.inc(func() { c.ledgerWriteSuccess++ }) }

// IncLedgerWriteFailure records a failed ledger write (per call).
func (c *Collector) IncLedgerWriteFailure() { c.inc(func() { c.ledgerWriteFailure++ }) }

// --- Notifications ---

// IncNotifySuccess records a delivered notification.
func (c *Collector) IncNotifySuccess() { c.inc(func() { c.notifySuccess++ }) }

// IncNotifyFailure records a failed notification.
func (c *Collector) IncNotifyFailure() { c.inc(func() { c.notifyFailure++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byAction := make(map[string]int64, len(c.ordersByAction))
	for k, v := range c.ordersByAction {
		byAction[k] = v
	}

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		OrdersSucceeded: c.ordersSucceeded,
		OrdersFailed:    c.ordersFailed,
		OrdersRejected:  c.ordersRejected,
		OrdersByAction:  byAction,

		RetrieveSuccess:  c.retrieveSuccess,
		RetrieveExpired:  c.retrieveExpired,
		RetrieveNotFound: c.retrieveNotFound,
		RetrieveFailure:  c.retrieveFailure,
		AuthRefreshes:    c.authRefreshes,

		PayloadUploads:        c.payloadUploads,
		PayloadUploadFailures: c.payloadUploadFailures,
		LedgerWriteSuccess:    c.ledgerWriteSuccess,
		LedgerWriteFailure:    c.ledgerWriteFailure,

		NotifySuccess: c.notifySuccess,
		NotifyFailure: c.notifyFailure,

		Registry: c.registry,
		Platform: c.platform,
	}
}

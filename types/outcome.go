package types

// OrderState tracks one order through the engine.
//
//	pending -> guard_checked -> executing -> succeeded
//	                                      -> failed
//	                         -> rejected
type OrderState string

// Order states.
const (
	OrderPending      OrderState = "pending"
	OrderGuardChecked OrderState = "guard_checked"
	OrderExecuting    OrderState = "executing"
	OrderSucceeded    OrderState = "succeeded"
	OrderFailed       OrderState = "failed"
	OrderRejected     OrderState = "rejected"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderState) IsTerminal() bool {
	return s == OrderSucceeded || s == OrderFailed || s == OrderRejected
}

// ExecutionOutcome is the per-order result of a run.
// Outcomes are returned in package order, one per order.
type ExecutionOutcome struct {
	OrderIndex int        `json:"order_index" yaml:"order_index" msgpack:"order_index"`
	Action     Action     `json:"action" yaml:"action" msgpack:"action"`
	Succeeded  bool       `json:"succeeded" yaml:"succeeded" msgpack:"succeeded"`
	State      OrderState `json:"state" yaml:"state" msgpack:"state"`
	Message    string     `json:"message" yaml:"message" msgpack:"message"`
}

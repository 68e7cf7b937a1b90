package fanout

// Fan-out step names, recorded in annotations and repair tasks.
const (
	StepMirrors    = "mirrors"
	StepAggregates = "aggregates"
	StepCashback   = "cashback"
)

// Task types carried on the reconcile queue.
const (
	TaskFanoutRepair     = "fanout_repair"
	TaskCourierReconcile = "courier_reconcile"
)

// Task is the payload sent from API -> SQS -> worker.
type Task struct {
	Type      string   `json:"type"`
	OrderID   string   `json:"order_id"`
	Steps     []string `json:"steps,omitempty"` // fanout_repair only
	RequestID string   `json:"request_id,omitempty"`
}

// Warning surfaces a non-fatal fan-out failure to the API response. The
// order is placed; the named projection write will be repaired.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

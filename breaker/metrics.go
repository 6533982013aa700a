package breaker

const (
	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "courier_breaker_state_changes_total"

	LabelBreaker   = "breaker"
	LabelFromState = "from_state"
	LabelToState   = "to_state"
)

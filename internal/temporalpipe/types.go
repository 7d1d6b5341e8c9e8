package temporalpipe

const (
	WorkflowName = "materialise_task"
	ActivityName = "materialise_task_activity"
)

// MaterialiseInput is the durable, JSON-serializable request the
// workflow carries: enough of a domain.Task to reconstruct it, plus the
// task's single raw output payload (already JSON-encoded) to be wrapped
// in a domain.PendingTable and handed to the controller. A task with
// more than one output table is split into one workflow execution per
// table by the caller — this harness materialises one table per
// invocation, kept simple since DAG-ordering and fan-out decisions are
// left entirely to the external scheduler.
type MaterialiseInput struct {
	OriginalName string `json:"original_name"`
	Version      string `json:"version,omitempty"`
	StageName    string `json:"stage_name"`
	CacheKey     string `json:"cache_key"`
	Lazy         bool   `json:"lazy"`
	InputType    string `json:"input_type,omitempty"`
	PayloadJSON  string `json:"payload_json"`
}

// MaterialiseResult carries back the canonical-JSON-encoded output tree
// (a single table reference) produced by the controller.
type MaterialiseResult struct {
	OutputJSON string `json:"output_json"`
}

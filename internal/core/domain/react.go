package domain

// ReActStep represents one step in the ReAct reasoning chain
type ReActStep struct {
	Thought       string         `json:"thought"`
	Action        string         `json:"action"`       // operation name
	ActionInput   map[string]any `json:"action_input"` // operation parameters
	Observation   string         `json:"observation"`  // rendered ExecutionResult
	IsFinalAnswer bool           `json:"is_final_answer"`
	FinalAnswer   string         `json:"final_answer"`
}

// ReasoningResult is a successful reasoning run.
type ReasoningResult struct {
	Text       string      `json:"text"`
	Operations []string    `json:"operations"`
	Steps      []ReActStep `json:"steps,omitempty"`
}

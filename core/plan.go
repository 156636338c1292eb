package core

// Action is one step of a plan. Confidence is in [0, 1].
type Action struct {
	Name        string            `json:"name"`
	Params      map[string]string `json:"params,omitempty"`
	Confidence  float64           `json:"confidence"`
	Explanation string            `json:"explanation,omitempty"`
}

// Plan is the reasoning engine's answer to a goal. Actions is never empty: a
// plan that failed validation is replaced by a conservative single-action
// fallback with Fallback set.
type Plan struct {
	Goal      string   `json:"goal"`
	Subgoals  []string `json:"subgoals"`
	Actions   []Action `json:"actions"`
	Validated bool     `json:"validated"`
	Fallback  bool     `json:"fallback"`
}

// Inference is the reasoning engine's answer to a query, with the ids of the
// memories consulted so the result stays traceable.
type Inference struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	MemoryIDs  []string `json:"memory_ids,omitempty"`
}

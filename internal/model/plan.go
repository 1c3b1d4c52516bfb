package model

import (
	"encoding/json"
	"strconv"
)

// PlannedTask is one element of an upstream planner's output.
type PlannedTask struct {
	Task      string   `json:"task"`
	Assignee  string   `json:"assignee"`
	Priority  int      `json:"priority"`
	DependsOn []DepRef `json:"depends_on,omitempty"`
}

// DepRef references another planned task either by task id (task_<n>) or by
// 1-based plan position. Planners emit both forms.
type DepRef string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (d *DepRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = DepRef(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = DepRef(strconv.Itoa(n))
	return nil
}

// TaskID resolves the reference to a task id. Numeric references are
// interpreted as 1-based plan positions.
func (d DepRef) TaskID() string {
	if n, err := strconv.Atoi(string(d)); err == nil {
		return "task_" + strconv.Itoa(n)
	}
	return string(d)
}

// AgentMessage is a best-effort message passed between registered agents.
type AgentMessage struct {
	From     string            `json:"from_agent"`
	To       string            `json:"to_agent"`
	Content  string            `json:"content"`
	Type     string            `json:"message_type"` // info, request, response, error
	Metadata map[string]string `json:"metadata,omitempty"`
}

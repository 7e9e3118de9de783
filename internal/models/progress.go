package models

import (
	"fmt"
	"time"
)

// ItemStatus is the per-item status carried in progress messages
type ItemStatus string

const (
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusFail    ItemStatus = "fail"
	ItemStatusCancel  ItemStatus = "cancel" // item still running, or cancelled before the last step
)

// NodeStatus identifies the item a progress message is about
type NodeStatus struct {
	Label    string     `json:"label"`
	TypeNode NodeType   `json:"typeNode"`
	Status   ItemStatus `json:"status"`
	Action   Action     `json:"action"`
}

// ProgressMessage is what a browser bot reports for one item after each step attempt
type ProgressMessage struct {
	Steps    string      `json:"steps"` // "i/total"
	Info     string      `json:"info"`
	Percent  int         `json:"percent"`
	Action   Action      `json:"action,omitempty"`
	Complete bool        `json:"complete"`
	Fail     bool        `json:"fail,omitempty"`
	Node     *NodeStatus `json:"node,omitempty"`
}

// StepCounter formats the "i/total" steps field
func StepCounter(done, total int) string {
	return fmt.Sprintf("%d/%d", done, total)
}

// WorkerReport is one line a worker writes to stdout: a bot message tagged with the sub-worker that produced it
type WorkerReport struct {
	ChildID  int             `json:"pid"`
	Label    string          `json:"label"`
	TypeNode NodeType        `json:"typeNode"`
	Bot      ProgressMessage `json:"bot"`
}

// ItemLabel returns the label the report is about, preferring the node record
func (r WorkerReport) ItemLabel() string {
	if r.Bot.Node != nil && r.Bot.Node.Label != "" {
		return r.Bot.Node.Label
	}
	return r.Label
}

// ProgressEvent is the enriched event forwarded to observers for every worker message
type ProgressEvent struct {
	RunID     string    `json:"runId"`
	Phase     Phase     `json:"phase"`
	ChildID   int       `json:"childPid"`
	TypeNode  NodeType  `json:"typeNode"`
	Label     string    `json:"label"`
	PID       int       `json:"pid"`
	Steps     string    `json:"steps"`
	Info      string    `json:"info"`
	Percent   int       `json:"percent"`
	Complete  bool      `json:"complete"`
	Fail      bool      `json:"fail"`
	Timestamp time.Time `json:"timestamp"`
}

// PoolConsumedEvent is published each time a phase's pool is exhausted
type PoolConsumedEvent struct {
	RunID     string    `json:"runId"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessEvent is published when a worker starts or exits
type ProcessEvent struct {
	RunID     string    `json:"runId"`
	Phase     Phase     `json:"phase"`
	PID       int       `json:"pid"`
	Labels    []string  `json:"labels,omitempty"`
	ExitError string    `json:"exitError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

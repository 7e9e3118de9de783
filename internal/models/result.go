package models

import "time"

// Outcome is the terminal classification of a result record for reporting
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeInProgress Outcome = "in-progress"
)

// ResultRecord is the latest reported status of one item, keyed by label
type ResultRecord struct {
	Label     string          `json:"label"`
	TypeNode  NodeType        `json:"typeNode"`
	Phase     Phase           `json:"phase"`
	PID       int             `json:"pid"`
	Payload   ProgressMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewResultRecord builds a record from a worker report received during phase from process pid
func NewResultRecord(phase Phase, pid int, report WorkerReport) ResultRecord {
	typeNode := report.TypeNode
	if report.Bot.Node != nil && report.Bot.Node.TypeNode != "" {
		typeNode = report.Bot.Node.TypeNode
	}
	return ResultRecord{
		Label:     report.ItemLabel(),
		TypeNode:  typeNode,
		Phase:     phase,
		PID:       pid,
		Payload:   report.Bot,
		UpdatedAt: time.Now(),
	}
}

// NewRejectedRecord builds a failed record for an item the orchestrator refused to queue
func NewRejectedRecord(phase Phase, item WorkItem, info string) ResultRecord {
	return ResultRecord{
		Label:    item.Label,
		TypeNode: item.Kind,
		Phase:    phase,
		Payload: ProgressMessage{
			Steps:    StepCounter(0, 0),
			Info:     info,
			Action:   phase.Action(),
			Complete: true,
			Fail:     true,
			Node: &NodeStatus{
				Label:    item.Label,
				TypeNode: item.Kind,
				Status:   ItemStatusFail,
				Action:   phase.Action(),
			},
		},
		UpdatedAt: time.Now(),
	}
}

// Outcome classifies the record
func (r ResultRecord) Outcome() Outcome {
	if r.Payload.Fail || (r.Payload.Node != nil && r.Payload.Node.Status == ItemStatusFail) {
		return OutcomeFailed
	}
	if r.Payload.Complete {
		return OutcomeSucceeded
	}
	return OutcomeInProgress
}

// RunSummary counts outcomes across a run
type RunSummary struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`
}

// RunReport is the persisted outcome of one orchestrator run
type RunReport struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	CheckOnly  bool           `json:"checkOnly"`
	Cancelled  bool           `json:"cancelled"`
	Summary    RunSummary     `json:"summary"`
	Results    []ResultRecord `json:"results"`
}

// Elapsed returns the wall time of the run
func (r *RunReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

package models

import "time"

// ControlType selects what a control message cancels
type ControlType string

const (
	ControlOne ControlType = "one" // cancel the sub-worker named by ChildID
	ControlAll ControlType = "all" // cancel everything the worker owns
)

// ControlMessage is sent from the orchestrator to a worker on its stdin, one JSON object per line
type ControlMessage struct {
	Type    ControlType `json:"type"`
	ChildID int         `json:"childPid,omitempty"`
}

// WorkerContext is the shared phase context passed verbatim to every worker as its first argument
type WorkerContext struct {
	RunID       string        `json:"runId"`
	Phase       Phase         `json:"phase"`
	Action      Action        `json:"action"`
	Login       string        `json:"login"`
	Password    string        `json:"pwd"`
	LoginURL    string        `json:"loginUrl"`
	CheckOnly   bool          `json:"checkOnly"`
	Trace       bool          `json:"trace"`
	Retries     int           `json:"retries"`
	Duration    time.Duration `json:"duration"`
	StepRetries int           `json:"stepRetries"`
	StepTimeout time.Duration `json:"stepTimeout"`
	Headless    bool          `json:"headless"`
	UserAgent   string        `json:"userAgent,omitempty"`
	LogLevel    string        `json:"logLevel,omitempty"`
}

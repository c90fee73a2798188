package scan

import (
	"github.com/arlens/burrow/internal/node"
)

// Event channel names pushed to observers.
const (
	EventStarted  = "scan:started"
	EventProgress = "scan:progress"
	EventPartial  = "scan:partial"
	EventDone     = "scan:done"
)

// StartedPayload announces a registered scan.
type StartedPayload struct {
	ScanID   string `json:"scanId"`
	RootPath string `json:"rootPath"`
}

// ProgressPayload reports counters after each processed directory.
// ApproxCompletion is nil when the scan has no entry cap.
type ProgressPayload struct {
	ScanID               string   `json:"scanId"`
	DirsProcessed        int      `json:"dirsProcessed"`
	FilesProcessed       int      `json:"filesProcessed"`
	QueueLengthRemaining int      `json:"queueLengthRemaining"`
	ElapsedMs            int64    `json:"elapsedMs"`
	ApproxCompletion     *float64 `json:"approxCompletion"`
}

// PartialPayload carries one batch of newly discovered nodes.
type PartialPayload struct {
	ScanID    string      `json:"scanId"`
	Nodes     []node.Node `json:"nodes"`
	Truncated bool        `json:"truncated,omitempty"`
}

// DonePayload is emitted exactly once per scan.
type DonePayload struct {
	ScanID    string `json:"scanId"`
	Status    string `json:"status"`
	Cancelled bool   `json:"cancelled"`
}

// Terminal statuses.
const (
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

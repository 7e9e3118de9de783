package common

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDTimeLayout = "20060102T150405"

// NewRunID returns run_<UTC start time>_<8 hex chars>, so IDs of the same day sort by start time.
func NewRunID(started time.Time) string {
	return "run_" + started.UTC().Format(runIDTimeLayout) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

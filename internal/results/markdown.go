package results

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/addressbot/internal/models"
)

// RenderMarkdown renders a run report as a markdown document with a summary and a result table
func RenderMarkdown(report *models.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", report.ID)
	fmt.Fprintf(&b, "Started **%s**, elapsed **%s**.\n\n", report.StartedAt.Format(time.RFC1123), report.Elapsed().Round(time.Second))
	if report.CheckOnly {
		b.WriteString("*Check only: nothing was saved.*\n\n")
	}
	if report.Cancelled {
		b.WriteString("*Run cancelled before completion.*\n\n")
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total: %d\n", report.Summary.Total)
	fmt.Fprintf(&b, "- Succeeded: %d\n", report.Summary.Succeeded)
	fmt.Fprintf(&b, "- Failed: %d\n", report.Summary.Failed)
	fmt.Fprintf(&b, "- In progress: %d\n\n", report.Summary.InProgress)

	if len(report.Results) == 0 {
		b.WriteString("No item reported progress.\n")
		return b.String()
	}

	b.WriteString("## Results\n\n")
	b.WriteString("| Phase | Type | Label | Steps | Outcome | Info |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, rec := range SortByPhase(report.Results) {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			rec.Phase,
			rec.TypeNode,
			escapeCell(rec.Label),
			rec.Payload.Steps,
			rec.Outcome(),
			escapeCell(rec.Payload.Info),
		)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

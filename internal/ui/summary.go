package ui

import (
	"fmt"
	"time"

	"github.com/primezdev/ovnode-setup/internal/model"
)

// StepLine renders one step report as a single styled line, e.g.
// "✔ source       cloned (git) [1.2s]".
func (t Theme) StepLine(r model.StepReport) string {
	var mark string
	switch r.Status {
	case model.StepSucceeded:
		mark = t.Success.Render("✔")
	case model.StepFailed:
		mark = t.Failure.Render("✘")
	default:
		mark = t.Skipped.Render("-")
	}

	line := fmt.Sprintf("%s %-12s", mark, r.Name)
	if r.Detail != "" {
		line += " " + r.Detail
	}
	if r.Duration > 0 {
		line += fmt.Sprintf(" [%s]", r.Duration.Round(100*time.Millisecond))
	}
	if r.Error != "" {
		line += "\n  " + t.Failure.Render(r.Error)
	}
	return line
}

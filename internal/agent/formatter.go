package agent

import (
	"fmt"
	"strings"
)

const noStepsMessage = "No steps were executed."

var stepSeparator = "\n" + strings.Repeat("-", 30) + "\n"

// FormatResults merges step records into the report shown to the user. A
// single step is reported as its bare message.
func FormatResults(records []StepRecord) string {
	switch len(records) {
	case 0:
		return noStepsMessage
	case 1:
		return records[0].Outcome.Message
	}

	blocks := make([]string, 0, len(records))
	for i, r := range records {
		desc := r.Description
		if desc == "" {
			desc = string(r.Kind)
		}
		status := "success"
		if !r.Outcome.Success {
			status = "FAILED"
		}
		if r.Synthetic {
			status = "auto, " + status
		}
		blocks = append(blocks, fmt.Sprintf("== Step %d: %s (%s) ==\n%s", i+1, desc, status, strings.TrimSpace(r.Outcome.Message)))
	}
	return strings.Join(blocks, "\n"+stepSeparator)
}

package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// planParse is the outcome of reading a model plan: either usable steps or
// malformed with the reason and raw text kept for logging.
type planParse struct {
	steps     []Step
	malformed bool
	reason    string
	raw       string
}

func malformed(reason, raw string) planParse {
	return planParse{malformed: true, reason: reason, raw: raw}
}

var planListKeys = []string{"plan", "tasks", "steps"}

// parsePlan accepts a JSON array of steps, an object wrapping one under
// plan/tasks/steps, or a single step object. Elements that are not objects
// or have no kind are dropped.
func parsePlan(raw string) planParse {
	text := stripFences(raw)

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return malformed(fmt.Sprintf("invalid json: %v", err), raw)
	}

	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range planListKeys {
			if list, ok := v[key].([]any); ok {
				items = list
				break
			}
		}
		if items == nil {
			if _, ok := stepKindField(v); !ok {
				return malformed("object without a step list", raw)
			}
			items = []any{v}
		}
	default:
		return malformed("plan is neither a list nor an object", raw)
	}

	var steps []Step
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kindText, ok := stepKindField(obj)
		if !ok {
			continue
		}
		kind, _ := ParseStepKind(kindText)

		desc, _ := obj["description"].(string)
		if strings.TrimSpace(desc) == "" {
			desc = fmt.Sprintf("%s step", kind)
		}
		params, ok := obj["parameters"].(map[string]any)
		if !ok {
			params = map[string]any{}
		}
		steps = append(steps, Step{Kind: kind, Description: desc, Parameters: params})
	}
	if len(steps) == 0 {
		return malformed("plan has no usable steps", raw)
	}
	return planParse{steps: steps, raw: raw}
}

// stepKindField reads the kind of a step object; task_type and type are accepted aliases.
func stepKindField(obj map[string]any) (string, bool) {
	for _, key := range []string{"kind", "task_type", "type"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// repairPlan turns any parse result into a runnable plan.
func repairPlan(p planParse, task string) Plan {
	if p.malformed || len(p.steps) == 0 {
		return FallbackPlan(task)
	}
	return Plan{Steps: p.steps, Source: SourceLLM}
}

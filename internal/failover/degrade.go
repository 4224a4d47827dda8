// degrade.go builds the deterministic fallback outputs used when a role
// runs out of model candidates.
package failover

import "encoding/json"

const defaultDegradedFilePath = "MANUAL_IMPLEMENTATION.md"

// degradedPlan is a minimal two-milestone plan the planner fallback
// emits. It parses like any model-produced plan.
const degradedPlan = `# Plan: degraded fallback

All planner models were unavailable. This minimal plan records the idea
for manual refinement instead of inventing structure the models could
not provide.

confidence: 0.30

## Milestone: capture implementation notes
- description: Write the idea and the intended approach into a working document.
- create: [IMPLEMENTATION_PLAN.md]

## Milestone: manual follow-up
- description: Review the captured notes and implement the change by hand.
- modify: [IMPLEMENTATION_PLAN.md]
`

type degradedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type degradedCoderPayload struct {
	Files []degradedFile `json:"files"`
	Notes string         `json:"notes"`
}

type degradedReview struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// degradedResult returns the fallback Result for a role, or nil when the
// role has no degraded mode (the analyzer gates the whole session, so a
// made-up analysis would be worse than blocking).
func degradedResult(role Role, prompt string, opts Options) *Result {
	switch role {
	case RolePlanner:
		return &Result{
			Success:      true,
			Output:       degradedPlan,
			ModelUsed:    "degraded-template",
			UsedFallback: true,
			Degraded:     true,
		}

	case RoleCoder:
		path := opts.DegradedFilePath
		if path == "" {
			path = defaultDegradedFilePath
		}
		content := "# Manual implementation needed\n\n" +
			"All coder models were unavailable for this work item. The task\n" +
			"below still needs a human.\n\n" +
			"## Task\n\n```\n" + prompt + "\n```\n"
		payload, err := json.Marshal(degradedCoderPayload{
			Files: []degradedFile{{Path: path, Content: content}},
			Notes: "degraded fallback: placeholder written instead of code",
		})
		if err != nil {
			return nil
		}
		return &Result{
			Success:      true,
			Output:       string(payload),
			ModelUsed:    "degraded-manual",
			UsedFallback: true,
			Degraded:     true,
		}

	case RoleReviewer:
		payload, err := json.Marshal(degradedReview{
			Approved:   true,
			Confidence: 0.3,
			Summary:    "Automatic low-confidence approval: all reviewer models were unavailable.",
		})
		if err != nil {
			return nil
		}
		return &Result{
			Success:      true,
			Output:       string(payload),
			ModelUsed:    "degraded-optimistic",
			UsedFallback: true,
			Degraded:     true,
		}

	default:
		return nil
	}
}

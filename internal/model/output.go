// output.go parses the JSON envelope the agent CLI prints with
// --output-format json.
package model

import (
	"encoding/json"
	"fmt"
)

// rawOutput is the full JSON envelope returned by the agent CLI.
type rawOutput struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	Result     string  `json:"result"`
	CostUSD    float64 `json:"cost_usd"`
	DurationMS int64   `json:"duration_ms"`
	SessionID  string  `json:"session_id"`
	IsError    bool    `json:"is_error"`
	NumTurns   int     `json:"num_turns"`
}

// ParseOutput parses the raw envelope bytes into an Output. Envelopes that
// carry is_error come back as an InvokeError so callers see exactly one
// failure path.
func ParseOutput(raw []byte) (*Output, error) {
	if len(raw) == 0 {
		return nil, &InvokeError{Kind: KindMalformedOutput, Err: fmt.Errorf("empty model output")}
	}

	var envelope rawOutput
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &InvokeError{Kind: KindMalformedOutput, Err: fmt.Errorf("parsing model output: %w", err)}
	}

	if envelope.Type != "result" {
		return nil, &InvokeError{
			Kind: KindMalformedOutput,
			Err:  fmt.Errorf("unexpected output type %q (expected \"result\")", envelope.Type),
		}
	}

	if envelope.IsError {
		return nil, &InvokeError{
			Kind: classifyText(envelope.Result),
			Err:  fmt.Errorf("model reported failure: %s", envelope.Result),
		}
	}

	return &Output{
		Text:       envelope.Result,
		CostUSD:    envelope.CostUSD,
		DurationMS: envelope.DurationMS,
		SessionID:  envelope.SessionID,
	}, nil
}

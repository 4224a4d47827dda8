package model

import (
	"errors"
	"testing"
)

func TestParseOutputValid(t *testing.T) {
	raw := []byte(`{
		"type": "result",
		"result": "Created auth.go with login function",
		"cost_usd": 0.042,
		"duration_ms": 15000,
		"session_id": "sess-abc123",
		"is_error": false,
		"num_turns": 3
	}`)

	out, err := ParseOutput(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Text != "Created auth.go with login function" {
		t.Errorf("Text = %q, want %q", out.Text, "Created auth.go with login function")
	}
	if out.CostUSD != 0.042 {
		t.Errorf("CostUSD = %f, want %f", out.CostUSD, 0.042)
	}
	if out.DurationMS != 15000 {
		t.Errorf("DurationMS = %d, want %d", out.DurationMS, 15000)
	}
	if out.SessionID != "sess-abc123" {
		t.Errorf("SessionID = %q, want %q", out.SessionID, "sess-abc123")
	}
}

func TestParseOutputErrorResult(t *testing.T) {
	raw := []byte(`{
		"type": "result",
		"result": "Failed to complete task",
		"cost_usd": 0.01,
		"duration_ms": 5000,
		"session_id": "sess-err",
		"is_error": true,
		"num_turns": 1
	}`)

	out, err := ParseOutput(raw)
	if err == nil {
		t.Fatal("expected error for is_error result, got nil")
	}
	if out != nil {
		t.Errorf("out = %+v, want nil", out)
	}

	var invokeErr *InvokeError
	if !errors.As(err, &invokeErr) {
		t.Fatalf("error is %T, want *InvokeError", err)
	}
	if invokeErr.Kind != KindProcessError {
		t.Errorf("Kind = %q, want %q", invokeErr.Kind, KindProcessError)
	}
}

func TestParseOutputRateLimitedResult(t *testing.T) {
	raw := []byte(`{"type":"result","result":"API rate limit exceeded, retry later","is_error":true}`)

	_, err := ParseOutput(raw)
	var invokeErr *InvokeError
	if !errors.As(err, &invokeErr) {
		t.Fatalf("error is %T, want *InvokeError", err)
	}
	if invokeErr.Kind != KindRateLimited {
		t.Errorf("Kind = %q, want %q", invokeErr.Kind, KindRateLimited)
	}
}

func TestParseOutputAuthFailedResult(t *testing.T) {
	raw := []byte(`{"type":"result","result":"Invalid API key. Please run /login","is_error":true}`)

	_, err := ParseOutput(raw)
	var invokeErr *InvokeError
	if !errors.As(err, &invokeErr) {
		t.Fatalf("error is %T, want *InvokeError", err)
	}
	if invokeErr.Kind != KindAuthFailed {
		t.Errorf("Kind = %q, want %q", invokeErr.Kind, KindAuthFailed)
	}
}

func TestParseOutputEmpty(t *testing.T) {
	_, err := ParseOutput([]byte{})
	if err == nil {
		t.Error("expected error for empty input, got nil")
	}
	var invokeErr *InvokeError
	if !errors.As(err, &invokeErr) || invokeErr.Kind != KindMalformedOutput {
		t.Errorf("error = %v, want malformed_output kind", err)
	}
}

func TestParseOutputInvalidJSON(t *testing.T) {
	_, err := ParseOutput([]byte(`not json at all`))
	if err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
	var invokeErr *InvokeError
	if !errors.As(err, &invokeErr) || invokeErr.Kind != KindMalformedOutput {
		t.Errorf("error = %v, want malformed_output kind", err)
	}
}

func TestParseOutputWrongType(t *testing.T) {
	raw := []byte(`{
		"type": "error",
		"result": "something broke",
		"is_error": true
	}`)

	_, err := ParseOutput(raw)
	if err == nil {
		t.Error("expected error for wrong type, got nil")
	}
}

func TestParseOutputMinimalValid(t *testing.T) {
	raw := []byte(`{"type":"result","result":"ok"}`)

	out, err := ParseOutput(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "ok" {
		t.Errorf("Text = %q, want %q", out.Text, "ok")
	}
	if out.CostUSD != 0 {
		t.Errorf("CostUSD = %f, want 0", out.CostUSD)
	}
}

func TestClassifyText(t *testing.T) {
	cases := []struct {
		text string
		want ErrorKind
	}{
		{"Error: rate limit reached for requests", KindRateLimited},
		{"HTTP 429 Too Many Requests", KindRateLimited},
		{"server overloaded", KindRateLimited},
		{"401 Unauthorized", KindAuthFailed},
		{"invalid API key provided", KindAuthFailed},
		{"authentication required", KindAuthFailed},
		{"segmentation fault", KindProcessError},
		{"", KindProcessError},
	}
	for _, tc := range cases {
		if got := classifyText(tc.text); got != tc.want {
			t.Errorf("classifyText(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

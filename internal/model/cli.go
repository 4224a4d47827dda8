// cli.go spawns the agent CLI as a subprocess, one process per invocation.
package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultBinary = "claude"

// CLIInvoker shells out to the agent CLI for each invocation. Dir is the
// working directory the subprocess runs in.
type CLIInvoker struct {
	Binary string
	Dir    string
}

// NewCLIInvoker returns an invoker for the given CLI binary. An empty
// binary falls back to the claude CLI.
func NewCLIInvoker(binary, dir string) *CLIInvoker {
	if binary == "" {
		binary = defaultBinary
	}
	return &CLIInvoker{Binary: binary, Dir: dir}
}

// Invoke runs the CLI with the prompt and parses its JSON envelope. The
// subprocess is killed when the timeout or ctx expires.
func (c *CLIInvoker) Invoke(ctx context.Context, modelID, prompt string, timeout time.Duration) (*Output, error) {
	binary := c.Binary
	if binary == "" {
		binary = defaultBinary
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, &InvokeError{
			Kind:    KindProcessError,
			ModelID: modelID,
			Err:     fmt.Errorf("%s not found in PATH: %w", binary, err),
		}
	}

	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--dangerously-skip-permissions",
		"--model", modelID,
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = c.Dir

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &InvokeError{
				Kind:    KindTimeout,
				ModelID: modelID,
				Err:     fmt.Errorf("timed out after %s", timeout),
			}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &InvokeError{
			Kind:    classifyText(msg),
			ModelID: modelID,
			Err:     fmt.Errorf("%s exited with error: %s: %w", binary, msg, err),
		}
	}

	out, parseErr := ParseOutput(stdout.Bytes())
	if parseErr != nil {
		var invokeErr *InvokeError
		if errors.As(parseErr, &invokeErr) {
			invokeErr.ModelID = modelID
			return nil, invokeErr
		}
		return nil, &InvokeError{Kind: KindMalformedOutput, ModelID: modelID, Err: parseErr}
	}
	return out, nil
}

// classifyText maps CLI failure text onto an error kind. Anything not
// recognizably a rate limit or auth problem counts as a process error.
func classifyText(s string) ErrorKind {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "429"),
		strings.Contains(lower, "overloaded"):
		return KindRateLimited
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "authentication"):
		return KindAuthFailed
	default:
		return KindProcessError
	}
}

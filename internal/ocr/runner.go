package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrEngineMissing means an OCR binary is not installed or not on PATH.
var ErrEngineMissing = errors.New("ocr engine not installed")

const maxStderr = 8 << 10

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// CommandError is a failed engine invocation. Stderr holds the tail of what
// the tool printed.
type CommandError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited %d: %v", e.Name, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Name, e.ExitCode, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := exec.LookPath(name); err != nil {
		logger.Error("ocr.exec.missing", "cmd", name, "error", err)
		return nil, nil, fmt.Errorf("%w: %s", ErrEngineMissing, name)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		ce := &CommandError{Name: name, ExitCode: -1, Stderr: tail(strings.TrimSpace(errb.String()), maxStderr), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			ce.Err = ctxErr
		}
		logger.Error("ocr.exec.failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"exit_code", ce.ExitCode,
			"duration_ms", elapsed,
			"stderr", ce.Stderr,
		)
		return out.Bytes(), errb.Bytes(), ce
	}

	logger.Debug("ocr.exec.ok",
		"cmd", name,
		"duration_ms", elapsed,
		"stdout_bytes", out.Len(),
		"stderr_bytes", errb.Len(),
	)
	return out.Bytes(), errb.Bytes(), nil
}

// tail keeps the last max bytes of s.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

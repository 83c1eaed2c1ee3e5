// Package osexec runs external OS commands behind a narrow interface so the
// client agents can be exercised without touching the host.
package osexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

type Command struct {
	Name  string
	Args  []string
	Stdin string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command to completion. A non-zero exit status is
// reported as an error together with the captured Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError is returned when the process ran but exited non-zero.
type ExitError struct {
	Command Command
	Result  Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Result.ExitCode)
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// StepError names the step of a multi-step sequence that failed.
type StepError struct {
	Step   string
	Result Result
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Step runs cmd and wraps any failure in a StepError named step.
func Step(ctx context.Context, runner Runner, step string, cmd Command) (Result, error) {
	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return res, &StepError{Step: step, Result: res, Err: err}
	}
	return res, nil
}

type execRunner struct {
	timeout time.Duration
}

// NewRunner returns a Runner that bounds every process by timeout. A zero
// timeout leaves processes unbounded.
func NewRunner(timeout time.Duration) Runner {
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logr.FromContextOrDiscard(ctx)
	logger.V(1).Info("running command", "command", cmd.String())

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: c.ProcessState.ExitCode(),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return res, &ExitError{Command: cmd, Result: res}
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", cmd, ctx.Err())
	}
	return res, fmt.Errorf("failed to run %s: %w", cmd, err)
}

package osexec

import (
	"context"
	"sync"
)

// Response is a scripted outcome for one command line.
type Response struct {
	Result Result
	Err    error
}

// Fake is a Runner that records every call and answers from a script keyed
// by the command's String form. Unscripted commands succeed with empty
// output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Command
}

func NewFake() *Fake {
	return &Fake{responses: map[string]Response{}}
}

// On scripts the response for a command line such as "systemctl restart gdm".
func (f *Fake) On(commandLine string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[commandLine] = resp
	return f
}

// Fail scripts a non-zero exit for a command line.
func (f *Fake) Fail(commandLine string, exitCode int, stderr string) *Fake {
	res := Result{Stderr: stderr, ExitCode: exitCode}
	return f.On(commandLine, Response{
		Result: res,
		Err:    &ExitError{Command: Command{Name: commandLine}, Result: res},
	})
}

func (f *Fake) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	resp, ok := f.responses[cmd.String()]
	if !ok {
		return Result{}, nil
	}
	return resp.Result, resp.Err
}

func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// CommandLines returns the recorded calls in their String form.
func (f *Fake) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}

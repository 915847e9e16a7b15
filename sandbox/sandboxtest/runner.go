// Package sandboxtest provides an in-memory sandbox.Runner for tests.
package sandboxtest

import (
	"context"
	"sync"

	"github.com/isdmx/playbuild/sandbox"
)

// Runner is a sandbox.Runner that returns canned results and records calls.
type Runner struct {
	// RunFunc, when set, replaces Output and Err.
	RunFunc func(ctx context.Context, req sandbox.RunRequest) (sandbox.BuildOutput, error)
	Output  sandbox.BuildOutput
	Err     error
	// Gate, when set, blocks every Run and Exec until it is closed or receives.
	Gate chan struct{}

	// ExecFunc, when set, replaces ExecOutput and ExecErr.
	ExecFunc   func(ctx context.Context, req sandbox.RunRequest) (sandbox.BuildOutput, error)
	ExecOutput sandbox.BuildOutput
	ExecErr    error

	Missing map[string]bool

	mu       sync.Mutex
	requests []sandbox.RunRequest
	execs    []sandbox.RunRequest
}

// Succeeding returns a Runner whose builds produce wasm and js.
func Succeeding(wasm, js string) *Runner {
	return &Runner{Output: sandbox.BuildOutput{Wasm: []byte(wasm), JS: []byte(js)}}
}

// Failing returns a Runner whose builds fail the way the container would for exitCode.
func Failing(exitCode int, stdout, stderr string) *Runner {
	out := sandbox.BuildOutput{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
	return &Runner{Output: out, Err: sandbox.Classify(out)}
}

func (r *Runner) Run(ctx context.Context, req sandbox.RunRequest) (sandbox.BuildOutput, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if err := r.wait(ctx); err != nil {
		return sandbox.BuildOutput{}, err
	}
	if r.RunFunc != nil {
		return r.RunFunc(ctx, req)
	}
	return r.Output, r.Err
}

func (r *Runner) Exec(ctx context.Context, req sandbox.RunRequest) (sandbox.BuildOutput, error) {
	r.mu.Lock()
	r.execs = append(r.execs, req)
	r.mu.Unlock()

	if err := r.wait(ctx); err != nil {
		return sandbox.BuildOutput{}, err
	}
	if r.ExecFunc != nil {
		return r.ExecFunc(ctx, req)
	}
	return r.ExecOutput, r.ExecErr
}

func (r *Runner) wait(ctx context.Context) error {
	if r.Gate == nil {
		return nil
	}
	select {
	case <-r.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) ImageAvailable(_ context.Context, image string) (bool, error) {
	return !r.Missing[image], nil
}

// Calls returns how many builds were started.
func (r *Runner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// Requests returns a copy of every request seen so far.
func (r *Runner) Requests() []sandbox.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sandbox.RunRequest(nil), r.requests...)
}

// ExecRequests returns a copy of every Exec request seen so far.
func (r *Runner) ExecRequests() []sandbox.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sandbox.RunRequest(nil), r.execs...)
}

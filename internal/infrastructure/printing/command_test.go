package printing

import (
	"context"
	"sync"
)

// fakeRunner records invocations and returns canned output
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	result *CommandResult
	err    error
	// block waits for ctx to finish before returning ctx.Err()
	block bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return &CommandResult{}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeRunner) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

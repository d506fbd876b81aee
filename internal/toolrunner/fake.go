package toolrunner

import (
	"context"
	"sync"

	"github.com/ternarybob/assay/internal/interfaces"
)

// Call is one recorded invocation of a FakeRunner.
type Call struct {
	Tool string
	Args []string
}

// Handler produces the result of a fake invocation. It may write files named
// in args to simulate tool output.
type Handler func(ctx context.Context, args []string) (*interfaces.ToolResult, error)

// FakeRunner is a ToolRunner double that records calls and dispatches them to
// per-tool handlers. Tools without a handler exit 0 with no output.
type FakeRunner struct {
	mu       sync.Mutex
	calls    []Call
	handlers map[string]Handler
}

var _ interfaces.ToolRunner = (*FakeRunner)(nil)

// NewFakeRunner creates an empty fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]Handler)}
}

// Handle registers the handler for tool.
func (f *FakeRunner) Handle(tool string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[tool] = h
	return f
}

// Run records the call and delegates to the registered handler.
func (f *FakeRunner) Run(ctx context.Context, tool string, args ...string) (*interfaces.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Tool: tool, Args: append([]string(nil), args...)})
	h := f.handlers[tool]
	f.mu.Unlock()

	if h == nil {
		return &interfaces.ToolResult{}, nil
	}
	return h(ctx, args)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded invocations of tool.
func (f *FakeRunner) CallsTo(tool string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

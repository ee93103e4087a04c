package healer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

type fakeCompute struct {
	describeFn func(ctx context.Context, id string) (*ResourceState, error)
	rebootFn   func(ctx context.Context, id string) error

	mu        sync.Mutex
	describes int
	reboots   int
}

func (f *fakeCompute) DescribeInstance(ctx context.Context, id string) (*ResourceState, error) {
	f.mu.Lock()
	f.describes++
	f.mu.Unlock()
	if f.describeFn == nil {
		return &ResourceState{InstanceID: id, State: StateRunning}, nil
	}
	return f.describeFn(ctx, id)
}

func (f *fakeCompute) RebootInstance(ctx context.Context, id string) error {
	f.mu.Lock()
	f.reboots++
	f.mu.Unlock()
	if f.rebootFn == nil {
		return nil
	}
	return f.rebootFn(ctx, id)
}

func (f *fakeCompute) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describes + f.reboots
}

type fakeCommands struct {
	sendFn   func(ctx context.Context, req ScriptRequest) (string, error)
	statusFn func(ctx context.Context, commandID, instanceID string) (CommandReport, error)

	mu       sync.Mutex
	sent     []ScriptRequest
	statuses int
}

func (f *fakeCommands) SendScript(ctx context.Context, req ScriptRequest) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	if f.sendFn == nil {
		return "cmd-1", nil
	}
	return f.sendFn(ctx, req)
}

func (f *fakeCommands) CommandStatus(ctx context.Context, commandID, instanceID string) (CommandReport, error) {
	f.mu.Lock()
	f.statuses++
	f.mu.Unlock()
	if f.statusFn == nil {
		return CommandReport{Status: CommandSucceeded, Raw: "Success"}, nil
	}
	return f.statusFn(ctx, commandID, instanceID)
}

func (f *fakeCommands) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent) + f.statuses
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	ctxErrs []error
	err     error
}

func (m *memoryAudit) Append(ctx context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *memoryAudit) contextErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.ctxErrs...)
}

func (m *memoryAudit) all() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.entries...)
}

type fakeNotifier struct {
	err     error
	panics  any
	sent    []Notification
	ctxErrs []error
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.panics != nil {
		panic(f.panics)
	}
	return f.err
}

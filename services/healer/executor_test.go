package healer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoheal/pkg/render"
)

type executorFixture struct {
	compute  *fakeCompute
	commands *fakeCommands
	audit    *memoryAudit
	scripts  *Scripts
	exec     *Executor
}

func newExecutorFixture(t *testing.T, cfg ExecutorConfig) *executorFixture {
	t.Helper()

	engine, err := render.New()
	require.NoError(t, err)
	scripts, err := NewScripts(engine, DefaultScriptParams())
	require.NoError(t, err)

	f := &executorFixture{
		compute:  &fakeCompute{},
		commands: &fakeCommands{},
		audit:    &memoryAudit{},
		scripts:  scripts,
	}
	inspector, err := NewInspector(f.compute, nil, testLogger())
	require.NoError(t, err)

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	f.exec, err = NewExecutor(cfg, f.compute, inspector, f.commands, scripts, f.audit, nil, testLogger())
	require.NoError(t, err)
	return f
}

func TestExecuteDisabledMakesNoCalls(t *testing.T) {
	for _, action := range append(append([]Action(nil), Actions...), Action("unknown")) {
		t.Run(string(action), func(t *testing.T) {
			f := newExecutorFixture(t, ExecutorConfig{Enabled: false})

			result := f.exec.Execute(context.Background(), action, "i-0abc123")

			assert.False(t, result.Success)
			assert.Equal(t, DisabledDetail, result.Detail)
			assert.Equal(t, action, result.Action)
			assert.Zero(t, f.compute.calls())
			assert.Zero(t, f.commands.calls())
			assert.Empty(t, f.audit.all())
		})
	}
}

func TestExecuteReboot(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	id := uuid.New()
	ctx := WithInvocation(context.Background(), id)

	result := f.exec.Execute(ctx, ActionReboot, "i-0abc123")

	require.True(t, result.Success)
	assert.Equal(t, 1, f.compute.reboots)
	assert.Zero(t, f.compute.describes)
	assert.Zero(t, f.commands.calls())

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "reboot", entries[0].Action)
	assert.Equal(t, AuditInitiated, entries[0].Status)
	assert.Equal(t, id, entries[0].InvocationID)
}

func TestExecuteRebootError(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.compute.rebootFn = func(context.Context, string) error { return errors.New("throttled") }

	result := f.exec.Execute(context.Background(), ActionReboot, "i-0abc123")

	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "throttled")
	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, AuditFailed, entries[0].Status)
}

func TestExecuteRemoteScriptSucceeds(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true, ActionTimeout: 90 * time.Second})
	calls := 0
	f.commands.statusFn = func(context.Context, string, string) (CommandReport, error) {
		calls++
		if calls < 3 {
			return CommandReport{Status: CommandPending, Raw: "InProgress"}, nil
		}
		return CommandReport{Status: CommandSucceeded, Raw: "Success"}, nil
	}

	result := f.exec.Execute(context.Background(), ActionClearCache, "i-0abc123")

	require.True(t, result.Success, result.Detail)
	assert.Equal(t, "SSM command completed successfully", result.Detail)
	require.Len(t, f.commands.sent, 1)
	req := f.commands.sent[0]
	assert.Equal(t, "i-0abc123", req.InstanceID)
	assert.Equal(t, 90*time.Second, req.Timeout)
	want, err := f.scripts.For(ActionClearCache)
	require.NoError(t, err)
	assert.Equal(t, want, req.Commands)
	assert.Equal(t, 3, f.commands.statuses)

	var statuses []string
	for _, e := range f.audit.all() {
		assert.Equal(t, "ssm_clear_cache", e.Action)
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []string{AuditInitiated, AuditInProgress, AuditInProgress, AuditCompleted}, statuses)
}

func TestExecuteRemoteScriptFails(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.commands.statusFn = func(context.Context, string, string) (CommandReport, error) {
		return CommandReport{Status: CommandFailed, Raw: "Failed", Detail: "killall: no process found"}, nil
	}

	result := f.exec.Execute(context.Background(), ActionOptimizeCPU, "i-0abc123")

	assert.False(t, result.Success)
	assert.Equal(t, "killall: no process found", result.Detail)
	entries := f.audit.all()
	assert.Equal(t, AuditFailed, entries[len(entries)-1].Status)
}

func TestExecuteRemoteScriptFailsWithoutDetail(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.commands.statusFn = func(context.Context, string, string) (CommandReport, error) {
		return CommandReport{Status: CommandFailed, Raw: "Failed"}, nil
	}

	result := f.exec.Execute(context.Background(), ActionCleanupDisk, "i-0abc123")

	assert.False(t, result.Success)
	assert.Equal(t, "Unknown error", result.Detail)
}

func TestExecuteRemoteRequiresRunningInstance(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.compute.describeFn = func(_ context.Context, id string) (*ResourceState, error) {
		return &ResourceState{InstanceID: id, State: StateStopped}, nil
	}

	result := f.exec.Execute(context.Background(), ActionDiagnostic, "i-0abc123")

	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "not running")
	assert.Zero(t, f.commands.calls())
}

func TestExecuteRemoteInstanceGone(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.compute.describeFn = func(context.Context, string) (*ResourceState, error) {
		return nil, ErrInstanceNotFound
	}

	result := f.exec.Execute(context.Background(), ActionClearCache, "i-0abc123")

	assert.False(t, result.Success)
	assert.Zero(t, f.commands.calls())
}

func TestExecuteSendError(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.commands.sendFn = func(context.Context, ScriptRequest) (string, error) {
		return "", errors.New("instance not registered with ssm")
	}

	result := f.exec.Execute(context.Background(), ActionClearCache, "i-0abc123")

	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "not registered")
	assert.Zero(t, f.commands.statuses)
	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, AuditFailed, entries[0].Status)
}

func TestExecuteAuditErrorsIgnored(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})
	f.audit.err = errors.New("disk full")

	result := f.exec.Execute(context.Background(), ActionReboot, "i-0abc123")

	assert.True(t, result.Success)
}

func TestExecuteUnknownActionRunsDiagnostic(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true})

	result := f.exec.Execute(context.Background(), Action("restart_app"), "i-0abc123")

	require.True(t, result.Success)
	require.Len(t, f.commands.sent, 1)
	want, err := f.scripts.For(ActionDiagnostic)
	require.NoError(t, err)
	assert.Equal(t, want, f.commands.sent[0].Commands)
}

func TestPollerTimesOutAfterAttemptBudget(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true, PollInterval: 20 * time.Millisecond})
	f.commands.statusFn = func(context.Context, string, string) (CommandReport, error) {
		return CommandReport{Status: CommandPending, Raw: "Pending"}, nil
	}

	result := f.exec.Execute(context.Background(), ActionClearCache, "i-0abc123")

	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "timed out")
	assert.Equal(t, DefaultPollAttempts, f.commands.statuses)

	entries := f.audit.all()
	assert.Equal(t, AuditTimedOut, entries[len(entries)-1].Status)
}

func TestPollerLookupErrorsUseAttempts(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true, PollInterval: 20 * time.Millisecond, PollAttempts: 4})
	f.commands.statusFn = func(context.Context, string, string) (CommandReport, error) {
		return CommandReport{}, errors.New("InvocationDoesNotExist")
	}

	result := f.exec.Execute(context.Background(), ActionClearCache, "i-0abc123")

	assert.False(t, result.Success)
	assert.Equal(t, 4, f.commands.statuses)
}

func TestPollerBoundedBySlowCollaborator(t *testing.T) {
	interval := 10 * time.Millisecond
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true, PollInterval: interval})
	f.commands.statusFn = func(ctx context.Context, _, _ string) (CommandReport, error) {
		<-ctx.Done()
		return CommandReport{}, ctx.Err()
	}

	start := time.Now()
	result := f.exec.Execute(context.Background(), ActionClearCache, "i-0abc123")
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.True(t, strings.Contains(result.Detail, "timed out"), result.Detail)
	assert.LessOrEqual(t, f.commands.statuses, DefaultPollAttempts)
	assert.Less(t, elapsed, time.Duration(DefaultPollAttempts)*interval+250*time.Millisecond)
}

func TestPollerWaitNeverExceedsAttemptBudget(t *testing.T) {
	interval := 20 * time.Millisecond
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true, PollInterval: interval, PollAttempts: 3})
	var sentAt time.Time
	var deadlines []time.Time
	f.commands.sendFn = func(context.Context, ScriptRequest) (string, error) {
		sentAt = time.Now()
		return "cmd-3", nil
	}
	f.commands.statusFn = func(ctx context.Context, _, _ string) (CommandReport, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, deadline)
		return CommandReport{Status: CommandPending, Raw: "InProgress"}, nil
	}

	result := f.exec.Execute(context.Background(), ActionCleanupDisk, "i-0abc123")

	assert.False(t, result.Success)
	require.Len(t, deadlines, 3)
	for _, d := range deadlines {
		assert.WithinDuration(t, sentAt.Add(3*interval), d, 10*time.Millisecond)
	}
}

func TestPollerStopsOnCallerCancel(t *testing.T) {
	f := newExecutorFixture(t, ExecutorConfig{Enabled: true, PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	f.commands.sendFn = func(context.Context, ScriptRequest) (string, error) {
		cancel()
		return "cmd-9", nil
	}

	result := f.exec.Execute(ctx, ActionClearCache, "i-0abc123")

	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "cmd-9 timed out")
	assert.Zero(t, f.commands.statuses)
	entries := f.audit.all()
	assert.Equal(t, AuditTimedOut, entries[len(entries)-1].Status)
}

func TestNewExecutorValidates(t *testing.T) {
	_, err := NewExecutor(ExecutorConfig{}, nil, nil, nil, nil, nil, nil, testLogger())
	assert.Error(t, err)
}

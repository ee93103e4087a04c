package healer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultActionTimeout is handed to the command service as its own execution timeout.
const DefaultActionTimeout = 300 * time.Second

// DisabledDetail is the result detail when the kill switch is off.
const DisabledDetail = "auto-healing disabled"

// ExecutorConfig controls remediation behaviour.
type ExecutorConfig struct {
	// Enabled is the global kill switch.
	Enabled bool
	// ActionTimeout is passed through to the command service.
	ActionTimeout time.Duration
	PollInterval  time.Duration
	PollAttempts  int
}

func (c *ExecutorConfig) applyDefaults() {
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = DefaultActionTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = DefaultPollAttempts
	}
}

// Executor performs remediation actions against an instance.
type Executor struct {
	cfg       ExecutorConfig
	compute   Compute
	inspector *Inspector
	commands  Commands
	scripts   *Scripts
	audit     AuditLog
	metrics   *Metrics
	logger    zerolog.Logger
}

// NewExecutor creates an Executor bound to the provided collaborators.
func NewExecutor(cfg ExecutorConfig, compute Compute, inspector *Inspector, commands Commands, scripts *Scripts, audit AuditLog, metrics *Metrics, logger zerolog.Logger) (*Executor, error) {
	if compute == nil {
		return nil, errors.New("compute is required")
	}
	if inspector == nil {
		return nil, errors.New("inspector is required")
	}
	if commands == nil {
		return nil, errors.New("commands is required")
	}
	if scripts == nil {
		return nil, errors.New("scripts is required")
	}
	if audit == nil {
		return nil, errors.New("audit log is required")
	}
	cfg.applyDefaults()

	return &Executor{
		cfg:       cfg,
		compute:   compute,
		inspector: inspector,
		commands:  commands,
		scripts:   scripts,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Execute performs action against instanceID. Collaborator failures are
// reported as an unsuccessful result, never returned.
func (e *Executor) Execute(ctx context.Context, action Action, instanceID string) HealingResult {
	if !e.cfg.Enabled {
		e.logger.Info().Str("instance_id", instanceID).Str("action", string(action)).Msg("auto-healing disabled, skipping action")
		return newResult(action, instanceID, false, DisabledDetail)
	}

	if action == ActionReboot {
		return e.reboot(ctx, instanceID)
	}
	return e.runScript(ctx, action, instanceID)
}

func (e *Executor) reboot(ctx context.Context, instanceID string) HealingResult {
	e.logger.Info().Str("instance_id", instanceID).Msg("rebooting instance")

	if err := e.compute.RebootInstance(ctx, instanceID); err != nil {
		e.logger.Error().Err(err).Str("instance_id", instanceID).Msg("error rebooting instance")
		e.appendAudit(ctx, instanceID, string(ActionReboot), AuditFailed, err.Error())
		return newResult(ActionReboot, instanceID, false, fmt.Sprintf("reboot failed: %v", err))
	}

	detail := "EC2 instance reboot initiated"
	e.appendAudit(ctx, instanceID, string(ActionReboot), AuditInitiated, detail)
	return newResult(ActionReboot, instanceID, true, detail)
}

func (e *Executor) runScript(ctx context.Context, action Action, instanceID string) HealingResult {
	label := auditLabel(action)

	state, ok := e.inspector.Inspect(ctx, instanceID)
	if !ok {
		return newResult(action, instanceID, false, fmt.Sprintf("instance %s not found", instanceID))
	}
	if !state.Running() {
		e.logger.Warn().Str("instance_id", instanceID).Str("state", state.State).Msg("instance is not running, cannot execute remote command")
		return newResult(action, instanceID, false, fmt.Sprintf("instance %s is %s, not running", instanceID, state.State))
	}

	lines, err := e.scripts.For(action)
	if err != nil {
		e.logger.Error().Err(err).Str("action", string(action)).Msg("render remediation script")
		e.appendAudit(ctx, instanceID, label, AuditFailed, err.Error())
		return newResult(action, instanceID, false, fmt.Sprintf("render script: %v", err))
	}

	e.logger.Info().Str("instance_id", instanceID).Str("action", string(action)).Msg("executing remote command")
	commandID, err := e.commands.SendScript(ctx, ScriptRequest{
		InstanceID: instanceID,
		Action:     action,
		Commands:   lines,
		Timeout:    e.cfg.ActionTimeout,
		Comment:    "autoheal " + string(action),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("instance_id", instanceID).Msg("error sending remote command")
		e.appendAudit(ctx, instanceID, label, AuditFailed, err.Error())
		return newResult(action, instanceID, false, fmt.Sprintf("send command failed: %v", err))
	}

	e.logger.Info().Str("command_id", commandID).Str("instance_id", instanceID).Msg("remote command sent")
	e.appendAudit(ctx, instanceID, label, AuditInitiated, "Command ID: "+commandID)

	inv := &CommandInvocation{
		CommandID:  commandID,
		InstanceID: instanceID,
		Action:     action,
	}
	p := &poller{
		commands: e.commands,
		interval: e.cfg.PollInterval,
		attempts: e.cfg.PollAttempts,
		metrics:  e.metrics,
		logger:   e.logger,
		record: func(ctx context.Context, inv *CommandInvocation, status, detail string) {
			e.appendAudit(ctx, inv.InstanceID, label, status, detail)
		},
	}
	p.wait(ctx, inv)

	return newResult(action, instanceID, inv.Status == CommandSucceeded, inv.Detail)
}

func (e *Executor) appendAudit(ctx context.Context, instanceID, action, status, detail string) {
	entry := AuditEntry{
		InvocationID: InvocationFrom(ctx),
		Timestamp:    time.Now().UTC(),
		InstanceID:   instanceID,
		Action:       action,
		Status:       status,
		Details:      detail,
	}
	if err := e.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Error().Err(err).Str("instance_id", instanceID).Str("status", status).Msg("append audit entry")
	}
}

func auditLabel(action Action) string {
	return "ssm_" + string(action)
}

package healer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval is the spacing between command status checks.
	DefaultPollInterval = 3 * time.Second
	// DefaultPollAttempts caps the number of status checks per command.
	DefaultPollAttempts = 10
)

// poller drives a CommandInvocation from Pending to a terminal status.
//
// Checks are scheduled at dispatch + k*interval for k = 0..attempts-1, so slow
// status calls do not push later checks back. The whole wait, including the
// final status call, is bounded by attempts*interval.
type poller struct {
	commands Commands
	interval time.Duration
	attempts int
	metrics  *Metrics
	logger   zerolog.Logger
	// record is called for every observation.
	record func(ctx context.Context, inv *CommandInvocation, status, detail string)
}

func (p *poller) wait(ctx context.Context, inv *CommandInvocation) {
	inv.Status = CommandPending
	start := time.Now()

	budget := time.Duration(p.attempts) * p.interval
	ctx, cancel := context.WithDeadline(ctx, start.Add(budget))
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for inv.Attempts < p.attempts {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if err := ctx.Err(); err != nil {
			p.timeout(ctx, inv, fmt.Sprintf("command %s timed out: %v", inv.CommandID, err))
			return
		}

		inv.Attempts++
		report, err := p.commands.CommandStatus(ctx, inv.CommandID, inv.InstanceID)
		if err != nil {
			p.metrics.observePoll("error")
			p.logger.Warn().Err(err).
				Str("command_id", inv.CommandID).
				Int("attempt", inv.Attempts).
				Msg("command status lookup failed")
			p.record(ctx, inv, AuditInProgress, fmt.Sprintf("attempt %d: status lookup failed: %v", inv.Attempts, err))
		} else {
			raw := report.Raw
			if raw == "" {
				raw = string(report.Status)
			}
			p.metrics.observePoll(raw)
			p.logger.Info().
				Str("command_id", inv.CommandID).
				Int("attempt", inv.Attempts).
				Str("status", raw).
				Msg("command status")

			switch report.Status {
			case CommandSucceeded:
				inv.Status = CommandSucceeded
				inv.Detail = "SSM command completed successfully"
				p.record(context.WithoutCancel(ctx), inv, AuditCompleted, inv.Detail)
				return
			case CommandFailed:
				inv.Status = CommandFailed
				inv.Detail = report.Detail
				if inv.Detail == "" {
					inv.Detail = "Unknown error"
				}
				p.record(context.WithoutCancel(ctx), inv, AuditFailed, inv.Detail)
				return
			default:
				p.record(ctx, inv, AuditInProgress, fmt.Sprintf("attempt %d: %s", inv.Attempts, raw))
			}
		}

		if inv.Attempts < p.attempts {
			next := start.Add(time.Duration(inv.Attempts) * p.interval)
			timer.Reset(max(time.Until(next), 0))
		}
	}

	p.timeout(ctx, inv, fmt.Sprintf("command %s timed out: no terminal status after %d checks", inv.CommandID, p.attempts))
}

func (p *poller) timeout(ctx context.Context, inv *CommandInvocation, detail string) {
	inv.Status = CommandTimedOut
	inv.Detail = detail
	p.logger.Warn().Str("command_id", inv.CommandID).Msg(detail)
	p.record(context.WithoutCancel(ctx), inv, AuditTimedOut, detail)
}

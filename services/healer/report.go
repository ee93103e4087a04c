package healer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Notification statuses.
const (
	NotifySuccess = "success"
	NotifyFailed  = "failed"
)

// Reporter publishes remediation outcomes and records them in the audit log.
type Reporter struct {
	notifiers []Notifier
	audit     AuditLog
	logger    zerolog.Logger
}

// NewReporter creates a Reporter. With no notifiers, outcomes are only audited.
func NewReporter(audit AuditLog, logger zerolog.Logger, notifiers ...Notifier) (*Reporter, error) {
	if audit == nil {
		return nil, errors.New("audit log is required")
	}
	return &Reporter{notifiers: notifiers, audit: audit, logger: logger}, nil
}

// Report publishes result to every notifier and appends one audit entry.
// Notification failures are logged and do not affect the outcome.
func (r *Reporter) Report(ctx context.Context, result HealingResult, alarmDescription string) {
	status := NotifyFailed
	auditStatus := AuditFailed
	if result.Success {
		status = NotifySuccess
		auditStatus = AuditCompleted
	}

	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	note := Notification{
		HealingAction:    string(result.Action),
		InstanceID:       result.InstanceID,
		Status:           status,
		Timestamp:        ts,
		Details:          result.Detail,
		AlarmDescription: alarmDescription,
	}

	if len(r.notifiers) == 0 {
		r.logger.Warn().Str("instance_id", result.InstanceID).Msg("no notification destination configured, skipping notification")
	}
	for _, n := range r.notifiers {
		if err := notify(ctx, n, note); err != nil {
			r.logger.Error().Err(err).Str("notifier", n.Name()).Str("instance_id", result.InstanceID).Msg("error sending notification")
			continue
		}
		r.logger.Info().Str("notifier", n.Name()).Str("instance_id", result.InstanceID).Msg("notification sent")
	}

	entry := AuditEntry{
		InvocationID: InvocationFrom(ctx),
		Timestamp:    time.Now().UTC(),
		InstanceID:   result.InstanceID,
		Action:       string(result.Action),
		Status:       auditStatus,
		Details:      result.Detail,
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("instance_id", result.InstanceID).Msg("append audit entry")
	}
}

// notify converts a notifier panic into an error.
func notify(ctx context.Context, n Notifier, note Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Notify(ctx, note)
}

package healer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInstanceNotFound is returned by Compute implementations when the
// instance does not exist.
var ErrInstanceNotFound = errors.New("instance not found")

// AlertMessage is the decoded alert payload. It is never nil.
type AlertMessage map[string]any

// RawMessageKey holds the original payload when it could not be decoded.
const RawMessageKey = "raw_message"

// Instance run states reported by the compute API.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// ResourceState is a fresh snapshot of an instance.
type ResourceState struct {
	InstanceID   string             `json:"instance_id"`
	State        string             `json:"state"`
	InstanceType string             `json:"instance_type,omitempty"`
	PrivateIP    string             `json:"private_ip,omitempty"`
	PublicIP     string             `json:"public_ip,omitempty"`
	LaunchTime   *time.Time         `json:"launch_time,omitempty"`
	Tags         map[string]string  `json:"tags,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Running reports whether the instance can receive remote commands.
func (s *ResourceState) Running() bool {
	return s != nil && s.State == StateRunning
}

// CommandStatus is the lifecycle of a dispatched remote script.
type CommandStatus string

const (
	CommandPending   CommandStatus = "Pending"
	CommandSucceeded CommandStatus = "Succeeded"
	CommandFailed    CommandStatus = "Failed"
	CommandTimedOut  CommandStatus = "TimedOut"
)

// Terminal reports whether no further polling is needed.
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandSucceeded, CommandFailed, CommandTimedOut:
		return true
	default:
		return false
	}
}

// CommandInvocation tracks one remote script execution.
type CommandInvocation struct {
	CommandID  string
	InstanceID string
	Action     Action
	Status     CommandStatus
	Attempts   int
	Detail     string
}

// CommandReport is one status observation from the command service.
type CommandReport struct {
	Status CommandStatus
	// Raw is the service-specific status string, e.g. "InProgress".
	Raw string
	// Detail carries stderr output for failed commands.
	Detail string
}

// ScriptRequest describes a remote script dispatch.
type ScriptRequest struct {
	InstanceID string
	Action     Action
	Commands   []string
	Timeout    time.Duration
	Comment    string
}

// HealingResult is the outcome of one remediation attempt.
type HealingResult struct {
	Action     Action
	InstanceID string
	Success    bool
	Detail     string
	Timestamp  time.Time
}

func newResult(action Action, instanceID string, success bool, detail string) HealingResult {
	return HealingResult{
		Action:     action,
		InstanceID: instanceID,
		Success:    success,
		Detail:     detail,
		Timestamp:  time.Now().UTC(),
	}
}

// Audit statuses.
const (
	AuditInitiated  = "initiated"
	AuditInProgress = "in_progress"
	AuditCompleted  = "completed"
	AuditFailed     = "failed"
	AuditTimedOut   = "timed_out"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	InvocationID uuid.UUID `json:"invocation_id"`
	Timestamp    time.Time `json:"timestamp"`
	InstanceID   string    `json:"instance_id"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	Details      string    `json:"details"`
}

// Notification is the outcome message sent to subscribers.
type Notification struct {
	HealingAction    string    `json:"healing_action"`
	InstanceID       string    `json:"instance_id"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Details          string    `json:"details"`
	AlarmDescription string    `json:"alarm_description,omitempty"`
}

// Compute is the compute-management collaborator.
type Compute interface {
	DescribeInstance(ctx context.Context, instanceID string) (*ResourceState, error)
	RebootInstance(ctx context.Context, instanceID string) error
}

// MetricsSource reads recent utilisation for an instance.
type MetricsSource interface {
	InstanceMetrics(ctx context.Context, instanceID string) (map[string]float64, error)
}

// Commands is the command-execution collaborator.
type Commands interface {
	SendScript(ctx context.Context, req ScriptRequest) (string, error)
	CommandStatus(ctx context.Context, commandID, instanceID string) (CommandReport, error)
}

// Notifier publishes outcome notifications.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// AuditLog appends audit entries.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

type invocationKey struct{}

// WithInvocation stores the invocation id used to correlate audit entries.
func WithInvocation(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}

// InvocationFrom returns the invocation id carried by ctx, or uuid.Nil.
func InvocationFrom(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(invocationKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

package healer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"autoheal/pkg/telemetry"
)

const tracerName = "autoheal/services/healer"

// Response is the envelope returned for every alert.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type responseBody struct {
	InstanceID string    `json:"instance_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	Status     string    `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Details    string    `json:"details,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Body statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNoInstanceID is the 400 body error when no identifier could be found.
var ErrNoInstanceID = errors.New("could not extract instance id from alert")

// Orchestrator runs one alert through parse, extract, inspect, classify,
// execute and report.
type Orchestrator struct {
	inspector   *Inspector
	executor    *Executor
	reporter    *Reporter
	metrics     *Metrics
	maxAttempts int
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// Deps bundles the Orchestrator collaborators.
type Deps struct {
	Inspector *Inspector
	Executor  *Executor
	Reporter  *Reporter
	Metrics   *Metrics
	// MaxAttempts is informational only; no retry loop consumes it.
	MaxAttempts int
	Logger      zerolog.Logger
}

// New creates an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Inspector == nil {
		return nil, errors.New("inspector is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if deps.Reporter == nil {
		return nil, errors.New("reporter is required")
	}
	return &Orchestrator{
		inspector:   deps.Inspector,
		executor:    deps.Executor,
		reporter:    deps.Reporter,
		metrics:     deps.Metrics,
		maxAttempts: deps.MaxAttempts,
		logger:      deps.Logger,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// Handle processes one raw alert event. It never panics and always returns a
// well-formed Response.
func (o *Orchestrator) Handle(ctx context.Context, raw []byte) (resp Response) {
	start := time.Now()
	invocation := uuid.New()
	ctx = WithInvocation(ctx, invocation)
	ctx, span := o.tracer.Start(ctx, "autoheal.handle",
		trace.WithAttributes(attribute.String("autoheal.invocation_id", invocation.String())))
	logger := telemetry.WithTrace(ctx, o.logger).With().Str("invocation_id", invocation.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("unhandled error processing alert")
			resp = respond(http.StatusInternalServerError, responseBody{
				Status: StatusFailed,
				Error:  fmt.Sprintf("internal error: %v", r),
			})
		}
		span.SetAttributes(attribute.Int("autoheal.status_code", resp.StatusCode))
		if resp.StatusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "remediation failed")
		}
		span.End()
		o.metrics.observeInvocation(resp.StatusCode, time.Since(start))
	}()

	logger.Info().Int("max_healing_attempts", o.maxAttempts).Msg("received alert event")

	_, parse := o.tracer.Start(ctx, "autoheal.parse")
	msg := ParseEvent(raw, logger)
	instanceID, ok := ExtractInstanceID(msg, logger)
	parse.End()
	if !ok {
		logger.Error().Msg("could not extract instance id from alert")
		return respond(http.StatusBadRequest, responseBody{Error: ErrNoInstanceID.Error()})
	}
	span.SetAttributes(attribute.String("autoheal.instance_id", instanceID))
	logger = logger.With().Str("instance_id", instanceID).Logger()

	inspectCtx, inspect := o.tracer.Start(ctx, "autoheal.inspect")
	state, ok := o.inspector.Inspect(inspectCtx, instanceID)
	inspect.End()
	if !ok {
		return respond(http.StatusNotFound, responseBody{
			InstanceID: instanceID,
			Error:      fmt.Sprintf("instance %s not found", instanceID),
		})
	}

	action := Classify(msg, instanceID)
	span.SetAttributes(attribute.String("autoheal.action", string(action)))
	logger.Info().Str("action", string(action)).Str("state", state.State).Msg("determined healing action")

	execCtx, exec := o.tracer.Start(ctx, "autoheal.execute", trace.WithAttributes(attribute.String("autoheal.action", string(action))))
	result := o.executor.Execute(execCtx, action, instanceID)
	exec.SetAttributes(attribute.Bool("autoheal.success", result.Success))
	exec.End()
	o.metrics.observeRemediation(result)

	// The outcome is reported even if the caller has gone away.
	reportCtx, report := o.tracer.Start(context.WithoutCancel(ctx), "autoheal.report")
	o.reporter.Report(reportCtx, result, msg.String("AlarmDescription"))
	report.End()

	body := responseBody{
		InstanceID: instanceID,
		Action:     string(action),
		Status:     StatusCompleted,
		Timestamp:  result.Timestamp,
		Details:    result.Detail,
	}
	if !result.Success {
		body.Status = StatusFailed
		logger.Warn().Str("action", string(action)).Str("details", result.Detail).Msg("healing action failed")
		return respond(http.StatusInternalServerError, body)
	}
	logger.Info().Str("action", string(action)).Msg("healing action completed")
	return respond(http.StatusOK, body)
}

func respond(code int, body responseBody) Response {
	if body.Timestamp.IsZero() {
		body.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: fmt.Sprintf(`{"error":%q}`, err.Error())}
	}
	return Response{StatusCode: code, Body: string(data)}
}

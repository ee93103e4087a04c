package healer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Inspector fetches the current state of an instance.
type Inspector struct {
	compute Compute
	metrics MetricsSource
	logger  zerolog.Logger
}

// NewInspector creates an Inspector. metrics may be nil.
func NewInspector(compute Compute, metrics MetricsSource, logger zerolog.Logger) (*Inspector, error) {
	if compute == nil {
		return nil, errors.New("compute is required")
	}
	return &Inspector{compute: compute, metrics: metrics, logger: logger}, nil
}

// Inspect performs a single lookup. Missing instances and lookup errors both
// yield false; neither can be remediated.
func (i *Inspector) Inspect(ctx context.Context, instanceID string) (*ResourceState, bool) {
	state, err := i.compute.DescribeInstance(ctx, instanceID)
	switch {
	case errors.Is(err, ErrInstanceNotFound):
		i.logger.Warn().Str("instance_id", instanceID).Msg("instance not found")
		return nil, false
	case err != nil:
		i.logger.Error().Err(err).Str("instance_id", instanceID).Msg("error getting instance details")
		return nil, false
	case state == nil:
		return nil, false
	}

	if i.metrics != nil {
		metrics, err := i.metrics.InstanceMetrics(ctx, instanceID)
		if err != nil {
			i.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("error getting instance metrics")
		} else if len(metrics) > 0 {
			state.Metrics = metrics
			i.logger.Info().Str("instance_id", instanceID).Interface("metrics", metrics).Msg("instance metrics")
		}
	}

	return state, true
}

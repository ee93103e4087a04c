package healer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	cpuWindow = 5 * time.Minute
	cpuPeriod = 300
)

// CloudWatchAPI is the subset of the CloudWatch client used by CloudWatchMetrics.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatchMetrics reads recent CPU utilisation for an instance.
type CloudWatchMetrics struct {
	api CloudWatchAPI
	now func() time.Time
}

// NewCloudWatchMetrics wraps a CloudWatch client.
func NewCloudWatchMetrics(api CloudWatchAPI) (*CloudWatchMetrics, error) {
	if api == nil {
		return nil, errors.New("cloudwatch client is required")
	}
	return &CloudWatchMetrics{api: api, now: time.Now}, nil
}

// InstanceMetrics returns the average CPU utilisation over the last five
// minutes as "cpu_utilization". No datapoints yields an empty map.
func (m *CloudWatchMetrics) InstanceMetrics(ctx context.Context, instanceID string) (map[string]float64, error) {
	end := m.now().UTC()
	out, err := m.api.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String("CPUUtilization"),
		Dimensions: []cwtypes.Dimension{{
			Name:  aws.String("InstanceId"),
			Value: aws.String(instanceID),
		}},
		StartTime:  aws.Time(end.Add(-cpuWindow)),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(cpuPeriod),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		return nil, fmt.Errorf("cpu metrics for %s: %w", instanceID, err)
	}

	metrics := map[string]float64{}
	var latest time.Time
	for _, dp := range out.Datapoints {
		if dp.Average == nil {
			continue
		}
		ts := aws.ToTime(dp.Timestamp)
		if _, ok := metrics["cpu_utilization"]; ok && ts.Before(latest) {
			continue
		}
		latest = ts
		metrics["cpu_utilization"] = *dp.Average
	}
	return metrics, nil
}

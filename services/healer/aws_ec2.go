package healer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// EC2API is the subset of the EC2 client used by EC2Compute.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	RebootInstances(ctx context.Context, params *ec2.RebootInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RebootInstancesOutput, error)
}

// EC2Compute implements Compute against EC2.
type EC2Compute struct {
	api EC2API
}

// NewEC2Compute wraps an EC2 client.
func NewEC2Compute(api EC2API) (*EC2Compute, error) {
	if api == nil {
		return nil, errors.New("ec2 client is required")
	}
	return &EC2Compute{api: api}, nil
}

func (c *EC2Compute) DescribeInstance(ctx context.Context, instanceID string) (*ResourceState, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if isInstanceNotFound(err) {
			return nil, fmt.Errorf("describe %s: %w", instanceID, ErrInstanceNotFound)
		}
		return nil, fmt.Errorf("describe %s: %w", instanceID, err)
	}

	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			if aws.ToString(inst.InstanceId) == instanceID {
				return stateFromInstance(inst), nil
			}
		}
	}
	return nil, fmt.Errorf("describe %s: %w", instanceID, ErrInstanceNotFound)
}

func (c *EC2Compute) RebootInstance(ctx context.Context, instanceID string) error {
	_, err := c.api.RebootInstances(ctx, &ec2.RebootInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("reboot %s: %w", instanceID, err)
	}
	return nil
}

func stateFromInstance(inst ec2types.Instance) *ResourceState {
	state := &ResourceState{
		InstanceID:   aws.ToString(inst.InstanceId),
		InstanceType: string(inst.InstanceType),
		PrivateIP:    aws.ToString(inst.PrivateIpAddress),
		PublicIP:     aws.ToString(inst.PublicIpAddress),
		LaunchTime:   inst.LaunchTime,
	}
	if inst.State != nil {
		state.State = string(inst.State.Name)
	}
	if len(inst.Tags) > 0 {
		state.Tags = make(map[string]string, len(inst.Tags))
		for _, t := range inst.Tags {
			state.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return state
}

func isInstanceNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "InvalidInstanceID.NotFound", "InvalidInstanceID.Malformed":
		return true
	}
	return false
}

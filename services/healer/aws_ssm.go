package healer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const runShellScript = "AWS-RunShellScript"

// SSMAPI is the subset of the SSM client used by SSMCommands.
type SSMAPI interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
}

// SSMCommands implements Commands with Systems Manager Run Command.
type SSMCommands struct {
	api SSMAPI
}

// NewSSMCommands wraps an SSM client.
func NewSSMCommands(api SSMAPI) (*SSMCommands, error) {
	if api == nil {
		return nil, errors.New("ssm client is required")
	}
	return &SSMCommands{api: api}, nil
}

func (c *SSMCommands) SendScript(ctx context.Context, req ScriptRequest) (string, error) {
	in := &ssm.SendCommandInput{
		DocumentName: aws.String(runShellScript),
		InstanceIds:  []string{req.InstanceID},
		Parameters:   map[string][]string{"commands": req.Commands},
	}
	if req.Timeout > 0 {
		in.TimeoutSeconds = aws.Int32(int32(req.Timeout.Seconds()))
	}
	if req.Comment != "" {
		in.Comment = aws.String(req.Comment)
	}

	out, err := c.api.SendCommand(ctx, in)
	if err != nil {
		return "", fmt.Errorf("send command to %s: %w", req.InstanceID, err)
	}
	if out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return "", fmt.Errorf("send command to %s: empty command id", req.InstanceID)
	}
	return aws.ToString(out.Command.CommandId), nil
}

func (c *SSMCommands) CommandStatus(ctx context.Context, commandID, instanceID string) (CommandReport, error) {
	out, err := c.api.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(instanceID),
	})
	if err != nil {
		var missing *ssmtypes.InvocationDoesNotExist
		if errors.As(err, &missing) {
			return CommandReport{Status: CommandPending, Raw: "InvocationDoesNotExist"}, nil
		}
		return CommandReport{}, fmt.Errorf("command %s status: %w", commandID, err)
	}

	report := CommandReport{
		Status: commandStatusFrom(out.Status),
		Raw:    string(out.Status),
	}
	if report.Status == CommandFailed {
		report.Detail = aws.ToString(out.StandardErrorContent)
	}
	return report, nil
}

// commandStatusFrom maps SSM invocation statuses. Only Success and Failed
// end polling.
func commandStatusFrom(s ssmtypes.CommandInvocationStatus) CommandStatus {
	switch s {
	case ssmtypes.CommandInvocationStatusSuccess:
		return CommandSucceeded
	case ssmtypes.CommandInvocationStatusFailed:
		return CommandFailed
	default:
		return CommandPending
	}
}

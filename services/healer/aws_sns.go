package healer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const maxSubjectLen = 100

// SNSAPI is the subset of the SNS client used by SNSNotifier.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes notifications to an SNS topic.
type SNSNotifier struct {
	api      SNSAPI
	topicARN string
}

// NewSNSNotifier publishes to topicARN.
func NewSNSNotifier(api SNSAPI, topicARN string) (*SNSNotifier, error) {
	if api == nil {
		return nil, errors.New("sns client is required")
	}
	if topicARN == "" {
		return nil, errors.New("topic arn is required")
	}
	return &SNSNotifier{api: api, topicARN: topicARN}, nil
}

func (n *SNSNotifier) Name() string { return "sns" }

func (n *SNSNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.MarshalIndent(note, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	subject := fmt.Sprintf("Auto-Heal: %s - %s", note.HealingAction, note.InstanceID)
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}

	_, err = n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.topicARN, err)
	}
	return nil
}

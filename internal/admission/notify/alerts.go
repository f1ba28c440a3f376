package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonaws "admission-workers/internal/common/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Alerter publishes integrity violations to an operator topic.
type Alerter struct {
	sns   commonaws.SNSService
	topic string
	now   func() time.Time
}

func NewAlerter(client commonaws.SNSService, topicARN string) *Alerter {
	return &Alerter{sns: client, topic: topicARN, now: time.Now}
}

type integrityAlert struct {
	Kind          string    `json:"kind"`
	ApplicationID string    `json:"applicationId"`
	Source        string    `json:"source"`
	Cause         string    `json:"cause,omitempty"`
	DetectedAt    time.Time `json:"detectedAt"`
}

func (a *Alerter) IntegrityViolation(ctx context.Context, applicationID, source string, cause error) error {
	alert := integrityAlert{
		Kind:          "draft_admission_coexist",
		ApplicationID: applicationID,
		Source:        source,
		DetectedAt:    a.now().UTC(),
	}
	if cause != nil {
		alert.Cause = cause.Error()
	}
	msg, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	_, err = a.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topic),
		Subject:  aws.String("Admission integrity violation"),
		Message:  aws.String(string(msg)),
	})
	if err != nil {
		return fmt.Errorf("publish integrity alert: %w", err)
	}
	return nil
}

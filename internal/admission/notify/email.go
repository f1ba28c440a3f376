package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	commonaws "admission-workers/internal/common/aws"
	"admission-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer sends the applicant a confirmation when the personal section carries an e-mail.
type Mailer struct {
	ses  commonaws.SESService
	from string
}

func NewMailer(client commonaws.SESService, from string) *Mailer {
	return &Mailer{ses: client, from: from}
}

type personalContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (m *Mailer) AdmissionFinalized(ctx context.Context, rec *models.AdmissionRecord, _ *models.ApplicationDraft) error {
	raw, ok := rec.Sections[string(models.SectionPersonal)]
	if !ok {
		return nil
	}
	var contact personalContact
	if err := json.Unmarshal(raw, &contact); err != nil || !strings.Contains(contact.Email, "@") {
		return nil
	}

	subject := "Your application has been received"
	body := confirmationBody(contact.Name, rec)

	_, err := m.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{contact.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

func confirmationBody(name string, rec *models.AdmissionRecord) string {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}
	return fmt.Sprintf("%s,\n\nYour application %s has been submitted and payment received.\nReference: %s\n",
		greeting, rec.ApplicationID, rec.ID)
}

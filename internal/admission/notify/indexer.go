package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"admission-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Indexer writes admissions into a search index keyed by application id, so a replay
// overwrites instead of duplicating.
type Indexer struct {
	client *elasticsearch.Client
	index  string
}

func NewIndexer(client *elasticsearch.Client, index string) *Indexer {
	if index == "" {
		index = "admissions"
	}
	return &Indexer{client: client, index: index}
}

type admissionDocument struct {
	AdmissionID    string                     `json:"admissionId"`
	ApplicationID  string                     `json:"applicationId"`
	PaymentID      string                     `json:"paymentId"`
	Sections       map[string]json.RawMessage `json:"sections"`
	CompletedSteps []string                   `json:"completedSteps"`
	StartedAt      time.Time                  `json:"startedAt"`
	AdmittedAt     time.Time                  `json:"admittedAt"`
}

func (i *Indexer) AdmissionFinalized(ctx context.Context, rec *models.AdmissionRecord, draft *models.ApplicationDraft) error {
	doc := admissionDocument{
		AdmissionID:   rec.ID,
		ApplicationID: rec.ApplicationID,
		PaymentID:     rec.PaymentID,
		Sections:      rec.Sections,
		AdmittedAt:    rec.CreatedAt,
	}
	if draft != nil {
		doc.CompletedSteps = draft.CompletedSteps
		doc.StartedAt = draft.CreatedAt
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode admission document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: rec.ApplicationID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index admission: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("index admission: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}

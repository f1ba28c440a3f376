package store

import (
	"context"
	"database/sql"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/models"
)

const paymentColumns = `id, application_id, method, amount, amount_minor, currency,
	gateway_reference, status, message, created_at`

// PaymentLedger is append-only: attempts are inserted once and never updated.
type PaymentLedger struct {
	db *sql.DB
}

func NewPaymentLedger(db *sql.DB) *PaymentLedger {
	return &PaymentLedger{db: db}
}

func (l *PaymentLedger) Insert(ctx context.Context, p *models.PaymentAttempt) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.ApplicationID, p.Method, p.Amount, p.AmountMinor, p.Currency,
		p.GatewayReference, string(p.Status), p.Message, p.CreatedAt,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError("payment_attempt", err)
	}
	return nil
}

// Get returns the attempt only if it belongs to applicationID.
func (l *PaymentLedger) Get(ctx context.Context, applicationID, paymentID string) (*models.PaymentAttempt, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_attempts WHERE id = $1 AND application_id = $2`,
		paymentID, applicationID,
	)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewPaymentNotFoundError(applicationID, paymentID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get payment attempt", err)
	}
	return p, nil
}

// Latest returns the most recent attempt for the application.
func (l *PaymentLedger) Latest(ctx context.Context, applicationID string) (*models.PaymentAttempt, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payment_attempts
		WHERE application_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		applicationID,
	)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewPaymentNotFoundError(applicationID, "")
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("latest payment attempt", err)
	}
	return p, nil
}

func scanPayment(row rowScanner) (*models.PaymentAttempt, error) {
	var (
		p      models.PaymentAttempt
		status string
	)
	err := row.Scan(&p.ID, &p.ApplicationID, &p.Method, &p.Amount, &p.AmountMinor, &p.Currency,
		&p.GatewayReference, &status, &p.Message, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

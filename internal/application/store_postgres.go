package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crediflow/pkg/platform/sentinel"
)

// Encryptor protects the document identifier at rest. The store only needs
// an opaque string round-trip; cipher choice lives in platform/crypto.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Postgres persists applications in PostgreSQL. Bank snapshots are stored as
// JSONB in the shape the providers emit; document ids are encrypted before
// they reach the database.
type Postgres struct {
	db        *sql.DB
	encryptor Encryptor
}

func NewPostgres(db *sql.DB, encryptor Encryptor) *Postgres {
	return &Postgres{db: db, encryptor: encryptor}
}

const applicationColumns = `id, country_code, full_name, document_id, requested_amount, monthly_income, status, bank_data, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, app *Application) error {
	encryptedDoc, err := s.encryptor.Encrypt(app.DocumentID)
	if err != nil {
		return fmt.Errorf("encrypt document id: %w", err)
	}

	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		app.ID,
		string(app.CountryCode),
		app.FullName,
		encryptedDoc,
		app.RequestedAmount,
		app.MonthlyIncome,
		string(app.Status),
		nil,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)
	app, err := s.scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *Postgres) FindByFilters(ctx context.Context, filters Filters) ([]*Application, int, error) {
	filters = filters.Normalize()

	where := " WHERE 1=1"
	args := []any{}
	if filters.Country != nil {
		args = append(args, string(*filters.Country))
		where += fmt.Sprintf(" AND country_code = $%d", len(args))
	}
	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM applications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	query := "SELECT " + applicationColumns + " FROM applications" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := s.scanApplication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, total, nil
}

// UpdateStatus is a compare-and-swap on updated_at. A stale precondition
// means another writer landed first; the caller reloads and decides again.
func (s *Postgres) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, expectedUpdatedAt, now time.Time) (*Application, error) {
	query := `
		UPDATE applications
		SET status = $2, updated_at = $4
		WHERE id = $1 AND updated_at = $3
		RETURNING ` + applicationColumns
	row := s.db.QueryRowContext(ctx, query, id, string(status), expectedUpdatedAt, now)
	app, err := s.scanApplication(row)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update status: %w", err)
	}

	// Distinguish a lost race from a missing row.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("update status existence check: %w", err)
	}
	if exists {
		return nil, sentinel.ErrConflict
	}
	return nil, sentinel.ErrNotFound
}

func (s *Postgres) UpdateBankData(ctx context.Context, id uuid.UUID, snapshot *BankSnapshot, now time.Time) (*Application, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal bank snapshot: %w", err)
	}

	query := `
		UPDATE applications
		SET bank_data = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + applicationColumns
	row := s.db.QueryRowContext(ctx, query, id, payload, now)
	app, err := s.scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update bank data: %w", err)
	}
	return app, nil
}

// ExistsByDocumentAndCountry decrypts and compares because AES-GCM uses a
// random nonce per call: the same document never encrypts to the same
// ciphertext, so an indexed equality lookup is impossible.
func (s *Postgres) ExistsByDocumentAndCountry(ctx context.Context, documentID string, country CountryCode) (bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id FROM applications WHERE country_code = $1`, string(country))
	if err != nil {
		return false, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var encrypted string
		if err := rows.Scan(&encrypted); err != nil {
			return false, fmt.Errorf("scan document: %w", err)
		}
		decrypted, err := s.encryptor.Decrypt(encrypted)
		if err != nil {
			continue
		}
		if decrypted == documentID {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate documents: %w", err)
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanApplication(row rowScanner) (*Application, error) {
	var (
		id              uuid.UUID
		country         string
		fullName        string
		encryptedDoc    string
		requestedAmount float64
		monthlyIncome   float64
		status          string
		bankData        []byte
		createdAt       time.Time
		updatedAt       time.Time
	)
	if err := row.Scan(&id, &country, &fullName, &encryptedDoc, &requestedAmount,
		&monthlyIncome, &status, &bankData, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	documentID, err := s.encryptor.Decrypt(encryptedDoc)
	if err != nil {
		return nil, fmt.Errorf("decrypt document id: %w", err)
	}

	var snapshot *BankSnapshot
	if len(bankData) > 0 {
		snapshot, err = DecodeBankSnapshot(CountryCode(country), bankData)
		if err != nil {
			return nil, fmt.Errorf("decode bank snapshot: %w", err)
		}
	}

	return Reconstitute(id, CountryCode(country), fullName, documentID,
		requestedAmount, monthlyIncome, Status(status), snapshot, createdAt, updatedAt), nil
}

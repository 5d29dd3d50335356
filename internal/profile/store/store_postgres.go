package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"profilehub/internal/profile/models"
)

const uniqueViolation = "23505"

// attributeColumns whitelists the columns reachable by a projected read.
var attributeColumns = map[models.Attribute]string{
	models.AttrConsolidatedStatus:      "consolidated_status",
	models.AttrConsolidatedMessage:     "consolidated_message",
	models.AttrSubscriptionValidations: "subscription_validations",
}

const profileColumns = `
	user_id, idempotency_key, company_name, legal_name, email, website,
	business_address, legal_address, tax_identifiers,
	consolidated_status, consolidated_message,
	subscriptions, existing_subscriptions, subscription_validations,
	created_at, updated_at`

// PostgresStore persists profiles in the user_profiles table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, userID string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_profiles WHERE idempotency_key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return exists, nil
}

// Create inserts a profile. A unique violation on the user id or the
// idempotency key returns ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.UserID == "" {
		return fmt.Errorf("profile with user id is required")
	}
	business, err := jsonArg(profile.BusinessAddress, profile.BusinessAddress != nil)
	if err != nil {
		return err
	}
	legal, err := jsonArg(profile.LegalAddress, profile.LegalAddress != nil)
	if err != nil {
		return err
	}
	tax, err := jsonArg(profile.TaxIdentifiers, true)
	if err != nil {
		return err
	}
	validations, err := jsonArg(profile.SubscriptionValidations, profile.SubscriptionValidations != nil)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO user_profiles (` + profileColumns + `)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb,
			NULLIF($10, ''), NULLIF($11, ''), $12, $13, $14::jsonb, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		profile.UserID,
		profile.IdempotencyKey,
		profile.CompanyName,
		profile.LegalName,
		profile.Email,
		profile.Website,
		business,
		legal,
		tax,
		string(profile.ConsolidatedStatus),
		profile.ConsolidatedMessage,
		pq.Array(nonNil(profile.Subscriptions)),
		pq.Array(nonNil(profile.ExistingSubscriptions)),
		validations,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create profile: %w", ErrConflict)
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// Update applies a partial write under the expectation that the stored
// user_id equals userID. Empty strings, nil slices and nil maps keep the
// stored value, except that a new status always replaces the message.
func (s *PostgresStore) Update(ctx context.Context, userID string, record *models.Profile) error {
	if err := checkExpectedID(userID, record); err != nil {
		return err
	}
	business, err := jsonArg(record.BusinessAddress, record.BusinessAddress != nil)
	if err != nil {
		return err
	}
	legal, err := jsonArg(record.LegalAddress, record.LegalAddress != nil)
	if err != nil {
		return err
	}
	tax, err := jsonArg(record.TaxIdentifiers, record.TaxIdentifiers != (models.TaxIdentifiers{}))
	if err != nil {
		return err
	}
	validations, err := jsonArg(record.SubscriptionValidations, record.SubscriptionValidations != nil)
	if err != nil {
		return err
	}
	var updatedAt any
	if !record.UpdatedAt.IsZero() {
		updatedAt = record.UpdatedAt
	}

	query := `
		UPDATE user_profiles SET
			company_name = COALESCE(NULLIF($2, ''), company_name),
			legal_name = COALESCE(NULLIF($3, ''), legal_name),
			email = COALESCE(NULLIF($4, ''), email),
			website = COALESCE(NULLIF($5, ''), website),
			business_address = COALESCE($6::jsonb, business_address),
			legal_address = COALESCE($7::jsonb, legal_address),
			tax_identifiers = COALESCE($8::jsonb, tax_identifiers),
			consolidated_status = COALESCE(NULLIF($9, ''), consolidated_status),
			consolidated_message = CASE
				WHEN NULLIF($9, '') IS NOT NULL THEN NULLIF($10, '')
				ELSE COALESCE(NULLIF($10, ''), consolidated_message)
			END,
			subscriptions = COALESCE($11::text[], subscriptions),
			existing_subscriptions = COALESCE($12::text[], existing_subscriptions),
			subscription_validations = COALESCE($13::jsonb, subscription_validations),
			updated_at = COALESCE($14, updated_at)
		WHERE user_id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		userID,
		record.CompanyName,
		record.LegalName,
		record.Email,
		record.Website,
		business,
		legal,
		tax,
		string(record.ConsolidatedStatus),
		record.ConsolidatedMessage,
		pq.Array(record.Subscriptions),
		pq.Array(record.ExistingSubscriptions),
		validations,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// FindAttributes reads only the requested attributes. With no attributes it
// reads the status projection.
func (s *PostgresStore) FindAttributes(ctx context.Context, userID string, attrs ...models.Attribute) (*models.ProjectedAttributes, error) {
	attrs = requestedAttributes(attrs)
	columns := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		col, ok := attributeColumns[attr]
		if !ok {
			return nil, fmt.Errorf("unknown attribute %q", attr)
		}
		columns = append(columns, col)
	}

	values := make([]any, len(attrs))
	dest := make([]any, len(attrs))
	for i := range values {
		dest[i] = &values[i]
	}
	query := `SELECT ` + strings.Join(columns, ", ") + ` FROM user_profiles WHERE user_id = $1`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find profile attributes: %w", err)
	}

	out := &models.ProjectedAttributes{}
	for i, attr := range attrs {
		raw := asBytes(values[i])
		if raw == nil {
			continue
		}
		switch attr {
		case models.AttrConsolidatedStatus:
			status := models.Status(raw)
			out.ConsolidatedStatus = &status
		case models.AttrConsolidatedMessage:
			msg := string(raw)
			out.ConsolidatedMessage = &msg
		case models.AttrSubscriptionValidations:
			if err := json.Unmarshal(raw, &out.SubscriptionValidations); err != nil {
				return nil, fmt.Errorf("decode subscription validations: %w", err)
			}
		}
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		p                                 models.Profile
		idempotencyKey, status, message   sql.NullString
		business, legal, tax, validations []byte
	)
	err := row.Scan(
		&p.UserID,
		&idempotencyKey,
		&p.CompanyName,
		&p.LegalName,
		&p.Email,
		&p.Website,
		&business,
		&legal,
		&tax,
		&status,
		&message,
		pq.Array(&p.Subscriptions),
		pq.Array(&p.ExistingSubscriptions),
		&validations,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IdempotencyKey = idempotencyKey.String
	p.ConsolidatedStatus = models.Status(status.String)
	p.ConsolidatedMessage = message.String

	if len(business) > 0 {
		if err := json.Unmarshal(business, &p.BusinessAddress); err != nil {
			return nil, fmt.Errorf("decode business address: %w", err)
		}
	}
	if len(legal) > 0 {
		if err := json.Unmarshal(legal, &p.LegalAddress); err != nil {
			return nil, fmt.Errorf("decode legal address: %w", err)
		}
	}
	if len(tax) > 0 {
		if err := json.Unmarshal(tax, &p.TaxIdentifiers); err != nil {
			return nil, fmt.Errorf("decode tax identifiers: %w", err)
		}
	}
	if len(validations) > 0 {
		if err := json.Unmarshal(validations, &p.SubscriptionValidations); err != nil {
			return nil, fmt.Errorf("decode subscription validations: %w", err)
		}
	}
	return &p, nil
}

// jsonArg encodes v for a jsonb parameter, or returns nil (SQL NULL) when the
// value is absent.
func jsonArg(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb column: %w", err)
	}
	return string(raw), nil
}

func asBytes(v any) []byte {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return []byte(fmt.Sprint(t))
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

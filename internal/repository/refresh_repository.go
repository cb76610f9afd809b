package repository

import (
	"CatalogAuth/internal"
	"CatalogAuth/internal/model"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"time"
)

const uniqueViolation = "23505"

// RefreshRepository keeps refresh records in postgres. Postgres has no TTL,
// so expiry is enforced by the caller and PurgeExpired sweeps old rows.
type RefreshRepository struct {
	*internal.Database
}

func NewRefreshRepository(database *internal.Database) *RefreshRepository {
	return &RefreshRepository{database}
}

func (repository *RefreshRepository) Create(ctx context.Context, record model.RefreshRecord) error {
	query := `INSERT INTO refresh_tokens (id, token_id, username, expires_at) VALUES ($1, $2, $3, $4)`

	_, err := repository.DB.ExecContext(ctx, query, uuid.New().String(), record.TokenID, record.Username, record.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRecordExists
		}
		return fmt.Errorf("%w: ошибка вставки данных в БД: %v", ErrStoreUnavailable, err)
	}

	return nil
}

func (repository *RefreshRepository) FindByTokenID(ctx context.Context, tokenID string) (*model.RefreshRecord, error) {
	var record model.RefreshRecord

	query := `SELECT token_id, username, expires_at FROM refresh_tokens WHERE token_id = $1`
	err := repository.DB.GetContext(ctx, &record, query, tokenID)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ошибка выполнения запроса: %v", ErrStoreUnavailable, err)
	}

	var retired bool
	query = `SELECT EXISTS (SELECT 1 FROM retired_refresh_tokens WHERE token_id = $1 AND expires_at > now())`
	if err := repository.DB.GetContext(ctx, &retired, query, tokenID); err != nil {
		return nil, fmt.Errorf("%w: ошибка выполнения запроса: %v", ErrStoreUnavailable, err)
	}
	if retired {
		return nil, ErrRecordRetired
	}

	return nil, ErrRecordNotFound
}

func (repository *RefreshRepository) DeleteByTokenID(ctx context.Context, tokenID string, retireUntil time.Time) (bool, error) {
	query := `
		WITH deleted AS (
			DELETE FROM refresh_tokens WHERE token_id = $1 RETURNING token_id
		), retired AS (
			INSERT INTO retired_refresh_tokens (token_id, expires_at) VALUES ($1, $2)
			ON CONFLICT (token_id) DO UPDATE
			SET expires_at = GREATEST(retired_refresh_tokens.expires_at, EXCLUDED.expires_at)
		)
		SELECT COUNT(*) FROM deleted`

	var deleted int
	if err := repository.DB.QueryRowxContext(ctx, query, tokenID, retireUntil).Scan(&deleted); err != nil {
		return false, fmt.Errorf("%w: не удалось удалить рефреш токен: %v", ErrStoreUnavailable, err)
	}

	return deleted > 0, nil
}

// Replace moves the record at oldTokenID to record.TokenID in one statement
// and retires the old id until the new expiry.
func (repository *RefreshRepository) Replace(ctx context.Context, oldTokenID string, record model.RefreshRecord) error {
	query := `
		WITH rotated AS (
			UPDATE refresh_tokens SET token_id = $2, expires_at = $3
			WHERE token_id = $1
			RETURNING id
		)
		INSERT INTO retired_refresh_tokens (token_id, expires_at)
		SELECT $1, $3 FROM rotated
		ON CONFLICT (token_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`

	result, err := repository.DB.ExecContext(ctx, query, oldTokenID, record.TokenID, record.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRecordExists
		}
		return fmt.Errorf("%w: не удалось обновить рефреш токен: %v", ErrStoreUnavailable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: не удалось проверить, обновлен ли токен: %v", ErrStoreUnavailable, err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// PurgeExpired deletes expired records and tombstones.
func (repository *RefreshRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`,
		`DELETE FROM retired_refresh_tokens WHERE expires_at <= $1`,
	} {
		result, err := repository.DB.ExecContext(ctx, query, now)
		if err != nil {
			return total, fmt.Errorf("%w: ошибка очистки просроченных токенов: %v", ErrStoreUnavailable, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		total += n
	}
	return total, nil
}

func (repository *RefreshRepository) Ping(ctx context.Context) error {
	if err := repository.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

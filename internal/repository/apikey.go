package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/booknest/booknest/internal/model"
)

var ErrAPIKeyNotFound = errors.New("API key not found")

const apiKeysTable = "api_keys"

// apiKeyQuery selects keys joined with their owner's email, which becomes
// the lending identity of every request the key authenticates.
func apiKeyQuery(where exp.Ex, newestFirst bool) (string, []any, error) {
	ds := pg.From(goqu.T(apiKeysTable).As("k")).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("k.user_id")))).
		Select(
			goqu.I("k.id"), goqu.I("k.user_id"), goqu.COALESCE(goqu.I("u.email"), ""),
			goqu.I("k.key_hash"), goqu.I("k.key_prefix"), goqu.I("k.scopes"),
			goqu.I("k.rate_limit_tier"), goqu.I("k.name"), goqu.I("k.revoked_at"),
			goqu.I("k.last_used_at"), goqu.I("k.created_at"),
		).
		Where(where)
	if newestFirst {
		ds = ds.Order(goqu.I("k.created_at").Desc())
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build API key query: %w", err)
	}
	return query, args, nil
}

// CreateAPIKey stores a freshly hashed key. The plaintext never reaches here.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.KeyHash, key.KeyPrefix, pq.Array(key.Scopes),
		key.RateLimitTier, key.Name, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	query, args, err := apiKeyQuery(goqu.Ex{"k.id": id}, false)
	if err != nil {
		return nil, err
	}
	key, err := scanAPIKey(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return key, nil
}

// GetAPIKeysByPrefix returns the unrevoked keys sharing a prefix. Callers
// verify the hash of each candidate.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return r.queryAPIKeys(ctx, goqu.Ex{"k.key_prefix": prefix, "k.revoked_at": nil}, false)
}

func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return r.queryAPIKeys(ctx, goqu.Ex{"k.user_id": userID}, true)
}

func (r *Repository) queryAPIKeys(ctx context.Context, where exp.Ex, newestFirst bool) ([]*model.APIKey, error) {
	query, args, err := apiKeyQuery(where, newestFirst)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey stamps revoked_at once. Revoking an unknown or already
// revoked key reports ErrAPIKeyNotFound.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	n, err := r.touchAPIKey(ctx, "revoked_at", goqu.Ex{"id": id, "revoked_at": nil})
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	if _, err := r.touchAPIKey(ctx, "last_used_at", goqu.Ex{"id": id}); err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}

// touchAPIKey sets column to now on the matching rows.
func (r *Repository) touchAPIKey(ctx context.Context, column string, where exp.Ex) (int64, error) {
	query, args, err := pg.Update(apiKeysTable).
		Set(goqu.Record{column: time.Now().UTC()}).
		Where(where).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	err := row.Scan(
		&key.ID, &key.UserID, &key.OwnerEmail, &key.KeyHash, &key.KeyPrefix,
		pq.Array(&key.Scopes), &key.RateLimitTier, &key.Name,
		&key.RevokedAt, &key.LastUsedAt, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/orderbot/internal/model"
)

// UpsertUser сохраняет профиль пользователя. Флаг блокировки не меняется.
func (r *PostgresRepository) UpsertUser(ctx context.Context, u model.User) (*model.User, error) {
	res := u
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, username, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET username = EXCLUDED.username,
		     first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     updated_at = now()
		 RETURNING blocked, created_at, updated_at`,
		u.ID, u.Username, u.FirstName, u.LastName,
	).Scan(&res.Blocked, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &res, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, first_name, last_name, blocked, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Blocked, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SetUserBlocked блокирует или разблокирует пользователя.
// Неизвестный пользователь создаётся, чтобы блокировку можно было выставить заранее.
func (r *PostgresRepository) SetUserBlocked(ctx context.Context, id int64, blocked bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, blocked) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET blocked = EXCLUDED.blocked, updated_at = now()`,
		id, blocked,
	)
	if err != nil {
		return fmt.Errorf("set user blocked: %w", err)
	}
	return nil
}

// IsUserBlocked сообщает, заблокирован ли пользователь. Неизвестный пользователь не заблокирован.
func (r *PostgresRepository) IsUserBlocked(ctx context.Context, id int64) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `SELECT blocked FROM users WHERE id = $1`, id).Scan(&blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user blocked: %w", err)
	}
	return blocked, nil
}

// GetSetting возвращает значение настройки или def, если настройка не задана.
func (r *PostgresRepository) GetSetting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return def, nil
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting сохраняет значение настройки.
func (r *PostgresRepository) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, r.pool, key, value)
}

func setSetting(ctx context.Context, db execer, key, value string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// ListSettings возвращает все заданные настройки.
func (r *PostgresRepository) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	res := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		res[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/hedge/internal/model"
)

// PostgresGuestSessionRepo はPostgreSQLを使用したゲストセッションリポジトリ。
type PostgresGuestSessionRepo struct {
	db *sql.DB
}

// NewPostgresGuestSessionRepo はPostgresGuestSessionRepoを生成する。
func NewPostgresGuestSessionRepo(db *sql.DB) *PostgresGuestSessionRepo {
	return &PostgresGuestSessionRepo{db: db}
}

// Create はゲストセッションを作成する。
func (r *PostgresGuestSessionRepo) Create(ctx context.Context, session *model.GuestSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guest_sessions (guest_id, display_name, created_at)
		 VALUES ($1, $2, $3)`,
		session.GuestID, session.DisplayName, timeToEpoch(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("ゲストセッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByGuestID は指定guest_idのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresGuestSessionRepo) FindByGuestID(ctx context.Context, guestID string) (*model.GuestSession, error) {
	session := &model.GuestSession{}
	var createdAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT guest_id, display_name, created_at
		 FROM guest_sessions WHERE guest_id = $1`,
		guestID,
	).Scan(&session.GuestID, &session.DisplayName, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ゲストセッションの取得に失敗しました: %w", err)
	}

	session.CreatedAt = epochToTime(createdAt)
	return session, nil
}

// DeleteCreatedBefore は指定日時より前に作成されたセッションを削除し、削除件数を返す。
func (r *PostgresGuestSessionRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM guest_sessions WHERE created_at < $1`,
		timeToEpoch(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れゲストセッションの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ GuestSessionRepository = (*PostgresGuestSessionRepo)(nil)

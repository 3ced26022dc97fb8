package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/hedge/internal/model"
)

// PostgresTagRepo はPostgreSQLを使用したタグリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// tagColumns はtagsテーブルのSELECT列。スキャン順と一致させること。
const tagColumns = `id, name, created_at, deleted_at`

// scanTag は1行分のタグをスキャンする。
func scanTag(row interface {
	Scan(dest ...interface{}) error
}) (*model.Tag, error) {
	tag := &model.Tag{}
	var createdAt, deletedAt sql.NullInt64

	err := row.Scan(&tag.ID, &tag.Name, &createdAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	tag.CreatedAt = nullEpochToTimePtr(createdAt)
	tag.Deletion = deletionFromNullEpoch(deletedAt)

	return tag, nil
}

// Create はタグを作成する。
// nameの一意性制約（UNIQUE）違反はConstraintViolationとしてそのまま返す。
func (r *PostgresTagRepo) Create(ctx context.Context, tag *model.Tag) error {
	var createdAt sql.NullInt64
	if tag.CreatedAt != nil {
		createdAt = sql.NullInt64{Int64: timeToEpoch(*tag.CreatedAt), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, created_at, deleted_at)
		 VALUES ($1, $2, $3, $4)`,
		tag.ID, tag.Name, createdAt, deletionToNullEpoch(tag.Deletion),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return &model.ConstraintViolationError{Constraint: pqErr.Constraint, Err: err}
		}
		return fmt.Errorf("タグの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのタグを取得する。見つからない場合はnilを返す。
func (r *PostgresTagRepo) FindByID(ctx context.Context, id string) (*model.Tag, error) {
	tag, err := scanTag(r.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	return tag, nil
}

// FindByName は指定名のタグを取得する。見つからない場合はnilを返す。
func (r *PostgresTagRepo) FindByName(ctx context.Context, name string) (*model.Tag, error) {
	tag, err := scanTag(r.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE name = $1`,
		name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タグ名での検索に失敗しました: %w", err)
	}
	return tag, nil
}

// FindByIDs は指定IDのタグをまとめて取得し、ID引きのマップで返す。
func (r *PostgresTagRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Tag, error) {
	result := make(map[string]*model.Tag, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("タグの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("タグ行の読み取りに失敗しました: %w", err)
		}
		result[tag.ID] = tag
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タグ一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// ListActive は論理削除されていないタグをname昇順で取得する。
func (r *PostgresTagRepo) ListActive(ctx context.Context) ([]*model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE deleted_at IS NULL ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("タグ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tags []*model.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("タグ行の読み取りに失敗しました: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タグ一覧の走査に失敗しました: %w", err)
	}

	return tags, nil
}

// SetDeletion は論理削除状態を設定する。
func (r *PostgresTagRepo) SetDeletion(ctx context.Context, id string, d model.Deletion) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tags SET deleted_at = $2 WHERE id = $1`,
		id, deletionToNullEpoch(d),
	)
	if err != nil {
		return fmt.Errorf("タグの削除状態の更新に失敗しました: %w", err)
	}
	return nil
}

// ListSoftDeletedBefore は指定日時より前に論理削除されたタグのIDを返す。
func (r *PostgresTagRepo) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM tags WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		timeToEpoch(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("パージ対象タグの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("パージ対象タグの行読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("パージ対象タグの走査に失敗しました: %w", err)
	}

	return ids, nil
}

// DeleteByIDs は指定IDのタグ行を物理削除し、削除件数を返す。
func (r *PostgresTagRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("タグの物理削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ TagRepository = (*PostgresTagRepo)(nil)

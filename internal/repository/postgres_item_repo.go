package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/hedge/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用したアイテムリポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// itemColumns はitemsテーブルのSELECT列。スキャン順と一致させること。
const itemColumns = `id, title, link, image, extract, owner_comment,
	       created_at, updated_at, view_count, deleted_at`

// scanItem は1行分のアイテムをスキャンする。
func scanItem(row interface {
	Scan(dest ...interface{}) error
}) (*model.Item, error) {
	item := &model.Item{}
	var link, image, extract, ownerComment sql.NullString
	var createdAt int64
	var updatedAt, deletedAt sql.NullInt64

	err := row.Scan(
		&item.ID, &item.Title, &link, &image, &extract, &ownerComment,
		&createdAt, &updatedAt, &item.ViewCount, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Link = nullStringValue(link)
	item.Image = nullStringValue(image)
	item.Extract = nullStringValue(extract)
	item.OwnerComment = nullStringValue(ownerComment)
	item.CreatedAt = epochToTime(createdAt)
	item.UpdatedAt = nullEpochToTimePtr(updatedAt)
	item.Deletion = deletionFromNullEpoch(deletedAt)

	return item, nil
}

// Create はアイテムを作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, title, link, image, extract, owner_comment,
		                    created_at, updated_at, view_count, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.Title, nullString(item.Link), nullString(item.Image),
		nullString(item.Extract), nullString(item.OwnerComment),
		timeToEpoch(item.CreatedAt), timePtrToNullEpoch(item.UpdatedAt),
		item.ViewCount, deletionToNullEpoch(item.Deletion),
	)
	if err != nil {
		return fmt.Errorf("アイテムの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのアイテムを取得する。論理削除済みの行も返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	return item, nil
}

// FindByIDs は指定IDのアイテムをまとめて取得し、ID引きのマップで返す。
func (r *PostgresItemRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Item, error) {
	result := make(map[string]*model.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("アイテムの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("アイテム行の読み取りに失敗しました: %w", err)
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイテム一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// ListActive は論理削除されていないアイテムを(created_at, id)降順で取得する。
// idx_items_created_atを利用するアクセスパス。
func (r *PostgresItemRepo) ListActive(ctx context.Context, cursor ListCursor, limit int) ([]*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE deleted_at IS NULL`
	args := []interface{}{}
	argIndex := 1

	// 複合カーソル。created_atは秒精度のため、同一秒の行はIDで切り分ける
	if !cursor.IsZero() {
		query += fmt.Sprintf(" AND (created_at < $%d OR (created_at = $%d AND id < $%d))",
			argIndex, argIndex, argIndex+1)
		args = append(args, timeToEpoch(cursor.CreatedAt), cursor.ID)
		argIndex += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("アイテム行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイテム一覧の走査に失敗しました: %w", err)
	}

	return items, nil
}

// Update はアイテムの内容を更新する。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.Item) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET
		    title = $2, link = $3, image = $4, extract = $5,
		    owner_comment = $6, updated_at = $7
		 WHERE id = $1`,
		item.ID, item.Title, nullString(item.Link), nullString(item.Image),
		nullString(item.Extract), nullString(item.OwnerComment),
		timePtrToNullEpoch(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("アイテムの更新に失敗しました: %w", err)
	}
	return nil
}

// IncrementViewCount は閲覧カウンタを1増やす。
func (r *PostgresItemRepo) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET view_count = view_count + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("閲覧カウンタの更新に失敗しました: %w", err)
	}
	return nil
}

// SetDeletion は論理削除状態を設定する（削除・復元の両方向）。
func (r *PostgresItemRepo) SetDeletion(ctx context.Context, id string, d model.Deletion) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET deleted_at = $2 WHERE id = $1`,
		id, deletionToNullEpoch(d),
	)
	if err != nil {
		return fmt.Errorf("アイテムの削除状態の更新に失敗しました: %w", err)
	}
	return nil
}

// ListSoftDeletedBefore は指定日時より前に論理削除されたアイテムのIDを返す。
func (r *PostgresItemRepo) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM items WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		timeToEpoch(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("パージ対象アイテムの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("パージ対象アイテムの行読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("パージ対象アイテムの走査に失敗しました: %w", err)
	}

	return ids, nil
}

// DeleteByIDs は指定IDのアイテム行を物理削除し、削除件数を返す。
func (r *PostgresItemRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("アイテムの物理削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)

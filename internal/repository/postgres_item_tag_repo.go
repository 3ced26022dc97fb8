package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresItemTagRepo はPostgreSQLを使用したアイテム・タグ関連リポジトリ。
type PostgresItemTagRepo struct {
	db *sql.DB
}

// NewPostgresItemTagRepo はPostgresItemTagRepoを生成する。
func NewPostgresItemTagRepo(db *sql.DB) *PostgresItemTagRepo {
	return &PostgresItemTagRepo{db: db}
}

// Attach は関連を作成する。複合主キー（item_id, tag_id）が重複を防ぐため、
// 既存の関連に対してはON CONFLICT DO NOTHINGで冪等にno-opになる。
func (r *PostgresItemTagRepo) Attach(ctx context.Context, itemID, tagID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO item_tags (item_id, tag_id) VALUES ($1, $2)
		 ON CONFLICT (item_id, tag_id) DO NOTHING`,
		itemID, tagID,
	)
	if err != nil {
		return fmt.Errorf("タグの付与に失敗しました: %w", err)
	}
	return nil
}

// Detach は関連を削除する。存在しない関連に対しては冪等にno-op。
func (r *PostgresItemTagRepo) Detach(ctx context.Context, itemID, tagID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM item_tags WHERE item_id = $1 AND tag_id = $2`,
		itemID, tagID,
	)
	if err != nil {
		return fmt.Errorf("タグの除去に失敗しました: %w", err)
	}
	return nil
}

// ListTagIDsByItem はアイテムに付与されたタグIDの一覧を返す。
// idx_item_tags_item_idを利用するアクセスパス。
func (r *PostgresItemTagRepo) ListTagIDsByItem(ctx context.Context, itemID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tag_id FROM item_tags WHERE item_id = $1`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("アイテムのタグ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

// ListItemIDsByTag はタグが付与されたアイテムIDの一覧を返す。
// idx_item_tags_tag_idを利用するアクセスパス。
func (r *PostgresItemTagRepo) ListItemIDsByTag(ctx context.Context, tagID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id FROM item_tags WHERE tag_id = $1`,
		tagID,
	)
	if err != nil {
		return nil, fmt.Errorf("タグのアイテム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

// collectIDs はrowsからID列のスライスを組み立てる。
func collectIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ID行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ID一覧の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// DeleteByItemIDs は指定アイテムの関連行を物理削除し、削除件数を返す。
func (r *PostgresItemTagRepo) DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_tags WHERE item_id = ANY($1)`,
		pq.Array(itemIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("アイテム・タグ関連の物理削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByTagID は指定タグの関連行を物理削除し、削除件数を返す。
func (r *PostgresItemTagRepo) DeleteByTagID(ctx context.Context, tagID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_tags WHERE tag_id = $1`,
		tagID,
	)
	if err != nil {
		return 0, fmt.Errorf("タグの関連行の物理削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ ItemTagRepository = (*PostgresItemTagRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/hedge/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// commentColumns はcommentsテーブルのSELECT列。スキャン順と一致させること。
const commentColumns = `id, item_id, parent_id, author, content, created_at, removed, deleted_at`

// scanComment は1行分のコメントをスキャンする。
func scanComment(row interface {
	Scan(dest ...interface{}) error
}) (*model.Comment, error) {
	comment := &model.Comment{}
	var parentID sql.NullString
	var createdAt int64
	var removed int
	var deletedAt sql.NullInt64

	err := row.Scan(
		&comment.ID, &comment.ItemID, &parentID, &comment.Author,
		&comment.Content, &createdAt, &removed, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		comment.ParentID = &parentID.String
	}
	comment.CreatedAt = epochToTime(createdAt)
	comment.Removed = removed != 0
	comment.Deletion = deletionFromNullEpoch(deletedAt)

	return comment, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	var parentID sql.NullString
	if comment.ParentID != nil {
		parentID = sql.NullString{String: *comment.ParentID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, item_id, parent_id, author, content,
		                       created_at, removed, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		comment.ID, comment.ItemID, parentID, comment.Author, comment.Content,
		timeToEpoch(comment.CreatedAt), boolToFlag(comment.Removed),
		deletionToNullEpoch(comment.Deletion),
	)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	comment, err := scanComment(r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return comment, nil
}

// ListByItem はアイテムのコメント一覧をcreated_at昇順で取得する。
// idx_comments_item_idを利用するアクセスパス。
// 論理削除済みは除外し、removed=1はスレッド構造保持のため含める。
func (r *PostgresCommentRepo) ListByItem(ctx context.Context, itemID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE item_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// ListByParent は指定コメントへの直接の返信をcreated_at昇順で取得する。
// idx_comments_parent_idを利用するアクセスパス。
func (r *PostgresCommentRepo) ListByParent(ctx context.Context, parentID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE parent_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("返信一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// collectComments はrowsからコメントのスライスを組み立てる。
func collectComments(rows *sql.Rows) ([]*model.Comment, error) {
	var comments []*model.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}
	return comments, nil
}

// SetRemoved は本文非表示フラグを設定する。
func (r *PostgresCommentRepo) SetRemoved(ctx context.Context, id string, removed bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE comments SET removed = $2 WHERE id = $1`,
		id, boolToFlag(removed),
	)
	if err != nil {
		return fmt.Errorf("コメントの非表示状態の更新に失敗しました: %w", err)
	}
	return nil
}

// SetDeletion は論理削除状態を設定する。
func (r *PostgresCommentRepo) SetDeletion(ctx context.Context, id string, d model.Deletion) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE comments SET deleted_at = $2 WHERE id = $1`,
		id, deletionToNullEpoch(d),
	)
	if err != nil {
		return fmt.Errorf("コメントの削除状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByItemIDs は指定アイテムに属するコメント行を物理削除し、削除件数を返す。
func (r *PostgresCommentRepo) DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE item_id = ANY($1)`,
		pq.Array(itemIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("コメントの物理削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)

// Package repository はデータ永続化のインターフェースを定義する。
//
// ストアは参照整合性を強制しない（ソフト外部キー）ため、item_id / parent_id /
// tag_id の健全性検証は書き込み前にサービス層が行い、読み取り時に解決できない
// 参照は孤児（DanglingReference）としてサービス層が扱う。リポジトリは行を
// 保存されたまま返し、参照チェックを行わない。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/hedge/internal/model"
)

// ListCursor はアイテム一覧の取得再開位置を表す。
// created_atは秒精度のため、同一秒内の行を取りこぼさないよう
// IDを副次キーとして持つ。ゼロ値は先頭からの取得を意味する。
type ListCursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero はカーソルが先頭位置を指すかどうかを返す。
func (c ListCursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == ""
}

// ItemRepository はアイテムデータの永続化インターフェース。
type ItemRepository interface {
	// Create はアイテムを作成する。
	Create(ctx context.Context, item *model.Item) error

	// FindByID は指定IDのアイテムを取得する。論理削除済みの行も返す。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// FindByIDs は指定IDのアイテムをまとめて取得し、ID引きのマップで返す。
	// 存在しないIDはマップに含まれない（孤児検出はサービス層の責務）。
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Item, error)

	// ListActive は論理削除されていないアイテムを(created_at, id)降順で取得する。
	// カーソルベースページネーションを使用し、cursorがゼロ値の場合は先頭から取得する。
	ListActive(ctx context.Context, cursor ListCursor, limit int) ([]*model.Item, error)

	// Update はアイテムの内容（title/link/image/extract/owner_comment/updated_at）を更新する。
	Update(ctx context.Context, item *model.Item) error

	// IncrementViewCount は閲覧カウンタを1増やす。
	// 単一のUPDATE文で加算するため、同時実行でもカウンタは非負のまま単調増加する。
	IncrementViewCount(ctx context.Context, id string) error

	// SetDeletion は論理削除状態を設定する（削除・復元の両方向）。
	SetDeletion(ctx context.Context, id string, d model.Deletion) error

	// ListSoftDeletedBefore は指定日時より前に論理削除されたアイテムのIDを返す。
	// パージワーカーが物理削除対象を特定するために使用する。
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteByIDs は指定IDのアイテム行を物理削除し、削除件数を返す。
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// ListByItem はアイテムのコメント一覧をcreated_at昇順で取得する。
	// 論理削除済み（deleted_at設定済み）は除外するが、removed=1の行は
	// スレッド構造保持のため含める。
	ListByItem(ctx context.Context, itemID string) ([]*model.Comment, error)

	// ListByParent は指定コメントへの直接の返信をcreated_at昇順で取得する。
	ListByParent(ctx context.Context, parentID string) ([]*model.Comment, error)

	// SetRemoved は本文非表示フラグを設定する。スレッド構造は保持される。
	SetRemoved(ctx context.Context, id string, removed bool) error

	// SetDeletion は論理削除状態を設定する。
	SetDeletion(ctx context.Context, id string, d model.Deletion) error

	// DeleteByItemIDs は指定アイテムに属するコメント行を物理削除し、削除件数を返す。
	// ストアはカスケード削除しないため、パージワーカーがアプリケーション側で呼び出す。
	DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error)
}

// TagRepository はタグデータの永続化インターフェース。
type TagRepository interface {
	// Create はタグを作成する。
	// name重複時はmodel.ConstraintViolationErrorをそのまま返す。
	Create(ctx context.Context, tag *model.Tag) error

	// FindByID は指定IDのタグを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Tag, error)

	// FindByName は指定名のタグを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Tag, error)

	// FindByIDs は指定IDのタグをまとめて取得し、ID引きのマップで返す。
	// 存在しないIDはマップに含まれない。
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Tag, error)

	// ListActive は論理削除されていないタグをname昇順で取得する。
	ListActive(ctx context.Context) ([]*model.Tag, error)

	// SetDeletion は論理削除状態を設定する。
	SetDeletion(ctx context.Context, id string, d model.Deletion) error

	// ListSoftDeletedBefore は指定日時より前に論理削除されたタグのIDを返す。
	// ワーカーのパージジョブが使用する。
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteByIDs は指定IDのタグ行を物理削除し、削除件数を返す。
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ItemTagRepository はアイテムとタグの関連の永続化インターフェース。
type ItemTagRepository interface {
	// Attach は関連を作成する。既存の関連に対しては冪等（no-op）。
	Attach(ctx context.Context, itemID, tagID string) error

	// Detach は関連を削除する。存在しない関連に対しては冪等（no-op）。
	Detach(ctx context.Context, itemID, tagID string) error

	// ListTagIDsByItem はアイテムに付与されたタグIDの一覧を返す。
	ListTagIDsByItem(ctx context.Context, itemID string) ([]string, error)

	// ListItemIDsByTag はタグが付与されたアイテムIDの一覧を返す。
	ListItemIDsByTag(ctx context.Context, tagID string) ([]string, error)

	// DeleteByItemIDs は指定アイテムの関連行を物理削除し、削除件数を返す。
	DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error)

	// DeleteByTagID は指定タグの関連行を物理削除し、削除件数を返す。
	DeleteByTagID(ctx context.Context, tagID string) (int64, error)
}

// GuestSessionRepository はゲストセッションの永続化インターフェース。
type GuestSessionRepository interface {
	// Create はゲストセッションを作成する。
	Create(ctx context.Context, session *model.GuestSession) error

	// FindByGuestID は指定guest_idのセッションを取得する。見つからない場合はnilを返す。
	FindByGuestID(ctx context.Context, guestID string) (*model.GuestSession, error)

	// DeleteCreatedBefore は指定日時より前に作成されたセッションを削除し、削除件数を返す。
	// スキーマ上に削除経路を持たないゲストセッションのTTLスイープとして、
	// ワーカーが定期的に呼び出す。
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

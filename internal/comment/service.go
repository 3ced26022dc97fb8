// Package comment はコメント管理のドメインロジックを提供する。
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/hedge/internal/metrics"
	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/repository"
)

// 投稿者名の最大文字数（コードポイント数）。
const maxAuthorLength = 32

// DocumentNormalizer はリッチテキストドキュメントの正規化インターフェース。
type DocumentNormalizer interface {
	Normalize(raw string) (string, error)
}

// CreateInput はコメント作成の入力を表す。
type CreateInput struct {
	ItemID   string
	ParentID *string
	Author   string
	Content  string
}

// ThreadNode はスレッドツリーの1ノードを表す。
// Danglingは親参照が解決できず切り離されたルートであることを示す。
type ThreadNode struct {
	Comment  *model.Comment
	Replies  []*ThreadNode
	Dangling bool
}

// Service はコメント管理のサービス層。
// ストアはツリーの健全性を強制しないため、親の実在・同一アイテム所属・
// 自己参照禁止の検証を書き込み前にここで行う。親が必ず既存コメントで
// あることから、循環参照は構築上発生しない。
type Service struct {
	commentRepo repository.CommentRepository
	itemRepo    repository.ItemRepository
	normalize   DocumentNormalizer
	collector   metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。collectorはnilを許容する。
func NewService(
	commentRepo repository.CommentRepository,
	itemRepo repository.ItemRepository,
	normalize DocumentNormalizer,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		commentRepo: commentRepo,
		itemRepo:    itemRepo,
		normalize:   normalize,
		collector:   collector,
		now:         time.Now,
	}
}

// Create は新しいコメントを作成する。
// アイテムが存在し削除されていないこと、親コメントが存在し同一アイテムに
// 属することを検証してから書き込む。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Comment, error) {
	author := strings.TrimSpace(input.Author)
	if author == "" {
		return nil, model.NewInvalidDisplayNameError("投稿者名が入力されていません")
	}
	if utf8.RuneCountInString(author) > maxAuthorLength {
		return nil, model.NewInvalidDisplayNameError(
			fmt.Sprintf("投稿者名は%d文字以内で入力してください", maxAuthorLength))
	}

	item, err := s.itemRepo.FindByID(ctx, input.ItemID)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(input.ItemID)
	}
	if item.Deletion.IsDeleted() {
		return nil, model.NewItemDeletedError(input.ItemID)
	}

	// 自己参照の検証のためIDは親検証より先に確定する
	commentID := uuid.NewString()

	if input.ParentID != nil {
		if err := s.validateParent(ctx, commentID, input.ItemID, *input.ParentID); err != nil {
			return nil, err
		}
	}

	content, err := s.normalize.Normalize(input.Content)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:        commentID,
		ItemID:    input.ItemID,
		ParentID:  input.ParentID,
		Author:    author,
		Content:   content,
		CreatedAt: s.now(),
		Deletion:  model.Active(),
	}

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}

	if s.collector != nil {
		s.collector.RecordCommentCreated()
	}

	slog.Info("コメントを作成しました",
		slog.String("comment_id", comment.ID),
		slog.String("item_id", comment.ItemID),
	)

	return comment, nil
}

// validateParent は親コメント参照の健全性を検証する。
// 親が既存コメントであることを要求するため、新規コメントを親に取る
// ことはできず、ツリーに循環は生じない。
func (s *Service) validateParent(ctx context.Context, commentID, itemID, parentID string) error {
	if parentID == commentID {
		return model.NewSelfParentError()
	}
	parent, err := s.commentRepo.FindByID(ctx, parentID)
	if err != nil {
		return fmt.Errorf("親コメントの取得に失敗しました: %w", err)
	}
	if parent == nil || parent.Deletion.IsDeleted() {
		return model.NewParentNotFoundError(parentID)
	}
	if parent.ItemID != itemID {
		return model.NewParentMismatchError(parentID, itemID)
	}
	return nil
}

// ListThread はアイテムのコメントをスレッドツリーとして取得する。
// 親参照が結果集合内で解決できないコメント（親が論理削除・物理削除された
// 孤児）は、切り離されたルートとしてDanglingフラグ付きで返す。
func (s *Service) ListThread(ctx context.Context, itemID string) ([]*ThreadNode, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}
	if item.Deletion.IsDeleted() {
		return nil, model.NewItemDeletedError(itemID)
	}

	comments, err := s.commentRepo.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}

	return buildThread(comments), nil
}

// buildThread はcreated_at昇順のコメント列からスレッドツリーを構築する。
func buildThread(comments []*model.Comment) []*ThreadNode {
	nodes := make(map[string]*ThreadNode, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &ThreadNode{Comment: c}
	}

	// 入力が昇順のため、各ノードのRepliesとルート列も昇順に並ぶ
	roots := make([]*ThreadNode, 0, len(comments))
	for _, c := range comments {
		node := nodes[c.ID]
		if c.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*c.ParentID]
		if !ok {
			// 親が結果集合にない孤児参照。切り離されたルートとして返す
			node.Dangling = true
			roots = append(roots, node)
			slog.Warn("孤児参照を検出しました", slog.String("error",
				(&model.DanglingReferenceError{
					Table:  "comments",
					Column: "parent_id",
					ID:     *c.ParentID,
				}).Error()))
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	return roots
}

// Remove はコメント本文を非表示化する。スレッド構造と返信は保持される。
func (s *Service) Remove(ctx context.Context, id string) error {
	comment, err := s.commentRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil || comment.Deletion.IsDeleted() {
		return model.NewCommentNotFoundError(id)
	}
	if comment.Removed {
		return nil
	}

	if err := s.commentRepo.SetRemoved(ctx, id, true); err != nil {
		return fmt.Errorf("コメントの非表示化に失敗しました: %w", err)
	}

	return nil
}

// SoftDelete はコメントを論理削除し、一覧から完全に除外する。
// 非表示化（Remove）と異なり、返信は親を失い孤児としてスレッドの
// ルートに浮上する。
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	comment, err := s.commentRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(id)
	}
	if comment.Deletion.IsDeleted() {
		return nil
	}

	if err := s.commentRepo.SetDeletion(ctx, id, model.DeletedAt(s.now())); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}

	slog.Info("コメントを論理削除しました",
		slog.String("comment_id", id),
	)

	return nil
}

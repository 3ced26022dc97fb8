// Package tag はタグ管理のドメインロジックを提供する。
package tag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/hedge/internal/metrics"
	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/repository"
)

// タグ名の最大文字数（コードポイント数）。
const maxTagNameLength = 50

// ItemTagView はアイテムに付与されたタグの解決結果を表す。
// Danglingはタグ本体が物理削除され参照が解決できないことを示す。
type ItemTagView struct {
	TagID    string
	Tag      *model.Tag
	Dangling bool
}

// Service はタグ管理のサービス層。
// ストアは参照整合性を強制しないため、関連の付け外し時にアイテムと
// タグの実在をここで検証し、読み取り時に解決できない参照は孤児として
// フラグ付きで返す。
type Service struct {
	tagRepo     repository.TagRepository
	itemRepo    repository.ItemRepository
	itemTagRepo repository.ItemTagRepository
	collector   metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。collectorはnilを許容する。
func NewService(
	tagRepo repository.TagRepository,
	itemRepo repository.ItemRepository,
	itemTagRepo repository.ItemTagRepository,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		tagRepo:     tagRepo,
		itemRepo:    itemRepo,
		itemTagRepo: itemTagRepo,
		collector:   collector,
		now:         time.Now,
	}
}

// Create は新しいタグを作成する。
// 名前は正規化（前後空白除去・小文字化）され、一意性はストアの
// UNIQUE制約で強制される。重複時はDUPLICATE_TAG_NAMEを返す。
func (s *Service) Create(ctx context.Context, name string) (*model.Tag, error) {
	normalized, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	// 事前チェックで既存名を検出する。競合時の最終防衛はストアのUNIQUE制約。
	existing, err := s.tagRepo.FindByName(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("タグの重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateTagNameError(normalized)
	}

	createdAt := s.now()
	tag := &model.Tag{
		ID:        uuid.NewString(),
		Name:      normalized,
		CreatedAt: &createdAt,
		Deletion:  model.Active(),
	}

	if err := s.tagRepo.Create(ctx, tag); err != nil {
		var cvErr *model.ConstraintViolationError
		if errors.As(err, &cvErr) {
			return nil, model.NewDuplicateTagNameError(normalized)
		}
		return nil, fmt.Errorf("タグの作成に失敗しました: %w", err)
	}

	if s.collector != nil {
		s.collector.RecordTagCreated()
	}

	slog.Info("タグを作成しました",
		slog.String("tag_id", tag.ID),
		slog.String("name", tag.Name),
	)

	return tag, nil
}

// List は論理削除されていないタグをname昇順で取得する。
func (s *Service) List(ctx context.Context) ([]*model.Tag, error) {
	tags, err := s.tagRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("タグ一覧の取得に失敗しました: %w", err)
	}
	return tags, nil
}

// SoftDelete はタグを論理削除する。既に削除済みの場合は冪等（no-op）。
// 関連（item_tags）は削除せず保持される。
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.tagRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	if tag == nil {
		return model.NewTagNotFoundError(id)
	}
	if tag.Deletion.IsDeleted() {
		return nil
	}

	if err := s.tagRepo.SetDeletion(ctx, id, model.DeletedAt(s.now())); err != nil {
		return fmt.Errorf("タグの削除に失敗しました: %w", err)
	}

	slog.Info("タグを論理削除しました",
		slog.String("tag_id", id),
	)

	return nil
}

// Attach はアイテムにタグを付与する。既存の関連に対しては冪等。
// アイテムとタグの実在・非削除を検証してから書き込む。
func (s *Service) Attach(ctx context.Context, itemID, tagID string) error {
	if err := s.validateReferences(ctx, itemID, tagID); err != nil {
		return err
	}

	if err := s.itemTagRepo.Attach(ctx, itemID, tagID); err != nil {
		return fmt.Errorf("タグの付与に失敗しました: %w", err)
	}

	return nil
}

// Detach はアイテムからタグを外す。存在しない関連に対しては冪等。
func (s *Service) Detach(ctx context.Context, itemID, tagID string) error {
	if err := s.validateReferences(ctx, itemID, tagID); err != nil {
		return err
	}

	if err := s.itemTagRepo.Detach(ctx, itemID, tagID); err != nil {
		return fmt.Errorf("タグの取り外しに失敗しました: %w", err)
	}

	return nil
}

// validateReferences は関連の両端（アイテムとタグ）の実在・非削除を検証する。
func (s *Service) validateReferences(ctx context.Context, itemID, tagID string) error {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return model.NewItemNotFoundError(itemID)
	}
	if item.Deletion.IsDeleted() {
		return model.NewItemDeletedError(itemID)
	}

	tag, err := s.tagRepo.FindByID(ctx, tagID)
	if err != nil {
		return fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	if tag == nil || tag.Deletion.IsDeleted() {
		return model.NewTagNotFoundError(tagID)
	}

	return nil
}

// ListTagsForItem はアイテムに付与されたタグを解決して返す。
// タグ本体が物理削除され解決できない関連は、Danglingフラグ付きで返す
// （論理削除されたタグは解決できるため通常どおり返す）。
func (s *Service) ListTagsForItem(ctx context.Context, itemID string) ([]*ItemTagView, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	tagIDs, err := s.itemTagRepo.ListTagIDsByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("タグ関連の取得に失敗しました: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil, nil
	}

	tags, err := s.tagRepo.FindByIDs(ctx, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}

	views := make([]*ItemTagView, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		tag, ok := tags[tagID]
		if !ok {
			// タグ本体が物理削除された孤児参照
			views = append(views, &ItemTagView{TagID: tagID, Dangling: true})
			slog.Warn("孤児参照を検出しました", slog.String("error",
				(&model.DanglingReferenceError{
					Table:  "item_tags",
					Column: "tag_id",
					ID:     tagID,
				}).Error()))
			continue
		}
		views = append(views, &ItemTagView{TagID: tagID, Tag: tag})
	}

	// 解決できたタグ名の昇順、孤児は末尾
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Dangling != views[j].Dangling {
			return !views[i].Dangling
		}
		if views[i].Dangling {
			return views[i].TagID < views[j].TagID
		}
		return views[i].Tag.Name < views[j].Tag.Name
	})

	return views, nil
}

// ListItemsForTag はタグが付与されたアイテムをcreated_at降順で返す。
// 論理削除されたアイテムと解決できない孤児参照は除外する。
func (s *Service) ListItemsForTag(ctx context.Context, tagID string) ([]*model.Item, error) {
	tag, err := s.tagRepo.FindByID(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	if tag == nil || tag.Deletion.IsDeleted() {
		return nil, model.NewTagNotFoundError(tagID)
	}

	itemIDs, err := s.itemTagRepo.ListItemIDsByTag(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("タグ関連の取得に失敗しました: %w", err)
	}
	if len(itemIDs) == 0 {
		return nil, nil
	}

	items, err := s.itemRepo.FindByIDs(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}

	result := make([]*model.Item, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		item, ok := items[itemID]
		if !ok || item.Deletion.IsDeleted() {
			continue
		}
		result = append(result, item)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// normalizeName はタグ名を正規化する。前後の空白を除去し小文字に揃える。
func normalizeName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", model.NewInvalidTagNameError("タグ名が入力されていません")
	}
	if utf8.RuneCountInString(normalized) > maxTagNameLength {
		return "", model.NewInvalidTagNameError(
			fmt.Sprintf("タグ名は%d文字以内で入力してください", maxTagNameLength))
	}
	return normalized, nil
}

// Package item はアイテム管理のドメインロジックを提供する。
package item

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/hedge/internal/metrics"
	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/preview"
	"github.com/hitoshi/hedge/internal/repository"
)

const (
	// タイトルの最大文字数（コードポイント数）。
	maxTitleLength = 200

	// 一覧取得のデフォルト件数と上限。
	defaultListLimit = 20
	maxListLimit     = 100
)

// DocumentNormalizer はリッチテキストドキュメントの正規化インターフェース。
// richtext.Normalizerを抽象化してテスタビリティを向上させる。
type DocumentNormalizer interface {
	Normalize(raw string) (string, error)
}

// PreviewFetcher はリンクプレビュー取得のインターフェース。
type PreviewFetcher interface {
	Fetch(ctx context.Context, inputURL string) (*preview.Preview, error)
}

// CreateInput はアイテム作成の入力を表す。
type CreateInput struct {
	Title        string
	Link         string
	Image        string
	Extract      string
	OwnerComment string
}

// UpdateInput はアイテム更新の入力を表す。nilのフィールドは変更しない。
type UpdateInput struct {
	Title        *string
	Link         *string
	Image        *string
	Extract      *string
	OwnerComment *string
}

// ListResult はカーソルページネーション付きの一覧結果を表す。
type ListResult struct {
	Items      []*model.Item
	NextCursor string
	HasMore    bool
}

// Service はアイテム管理のサービス層。
// ストアは参照整合性を強制しないため、ID生成と入力検証をここで行う。
type Service struct {
	itemRepo  repository.ItemRepository
	normalize DocumentNormalizer
	previews  PreviewFetcher
	collector metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// previewsとcollectorはnilを許容する（プレビュー取得・メトリクス記録をスキップ）。
func NewService(
	itemRepo repository.ItemRepository,
	normalize DocumentNormalizer,
	previews PreviewFetcher,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		itemRepo:  itemRepo,
		normalize: normalize,
		previews:  previews,
		collector: collector,
		now:       time.Now,
	}
}

// Create は新しいアイテムを作成する。
// extractは正規化され、linkが設定されている場合はプレビュー情報で
// title/imageの欠損を補完する（取得失敗は作成を妨げない）。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Item, error) {
	title := strings.TrimSpace(input.Title)
	link := strings.TrimSpace(input.Link)

	if link != "" {
		if err := validateLink(link); err != nil {
			return nil, err
		}
	}

	extract := input.Extract
	if extract != "" {
		normalized, err := s.normalize.Normalize(extract)
		if err != nil {
			return nil, err
		}
		extract = normalized
	}

	item := &model.Item{
		ID:           uuid.NewString(),
		Title:        title,
		Link:         link,
		Image:        strings.TrimSpace(input.Image),
		Extract:      extract,
		OwnerComment: strings.TrimSpace(input.OwnerComment),
		CreatedAt:    s.now(),
		Deletion:     model.Active(),
	}

	// リンク先からプレビュー情報を取得し、titleとimageの欠損を補完する
	if link != "" && s.previews != nil && (item.Title == "" || item.Image == "") {
		s.enrichFromPreview(ctx, item)
	}

	if err := validateTitle(item.Title); err != nil {
		return nil, err
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("アイテムの作成に失敗しました: %w", err)
	}

	if s.collector != nil {
		s.collector.RecordItemCreated()
	}

	slog.Info("アイテムを作成しました",
		slog.String("item_id", item.ID),
	)

	return item, nil
}

// enrichFromPreview はリンク先のプレビュー情報でアイテムの欠損フィールドを補完する。
// プレビュー取得の失敗はアイテム作成を妨げない。
func (s *Service) enrichFromPreview(ctx context.Context, item *model.Item) {
	p, err := s.previews.Fetch(ctx, item.Link)
	if err != nil {
		if s.collector != nil {
			s.collector.RecordPreviewFailure(err.Error())
		}
		slog.Warn("リンクプレビューの取得に失敗しました",
			slog.String("item_id", item.ID),
			slog.String("link", item.Link),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.collector != nil {
		s.collector.RecordPreviewSuccess()
	}
	if item.Title == "" {
		item.Title = p.Title
	}
	if item.Image == "" {
		item.Image = p.Image
	}
}

// Get は指定IDのアイテムを取得し、閲覧カウンタを加算する。
// 論理削除済みのアイテムはITEM_DELETEDを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Item, error) {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(id)
	}
	if item.Deletion.IsDeleted() {
		return nil, model.NewItemDeletedError(id)
	}

	// 閲覧カウンタは単一のUPDATE文で加算するため同時実行でも単調増加する。
	// 加算失敗は閲覧自体を妨げない。
	if err := s.itemRepo.IncrementViewCount(ctx, id); err != nil {
		slog.Warn("閲覧カウンタの加算に失敗しました",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		item.ViewCount++
	}

	return item, nil
}

// List は論理削除されていないアイテムをcreated_at降順で取得する。
// cursorは前回結果のNextCursor、空文字列は先頭からの取得を意味する。
func (s *Service) List(ctx context.Context, cursor string, limit int) (*ListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	listCursor, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	// HasMore判定のため1件多く取得する
	items, err := s.itemRepo.ListActive(ctx, listCursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧の取得に失敗しました: %w", err)
	}

	result := &ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.HasMore = true
	}
	if result.HasMore && len(result.Items) > 0 {
		last := result.Items[len(result.Items)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}

	return result, nil
}

// Update はアイテムの内容を更新する。nilでないフィールドのみ反映し、updated_atを設定する。
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*model.Item, error) {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(id)
	}
	if item.Deletion.IsDeleted() {
		return nil, model.NewItemDeletedError(id)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		item.Title = title
	}
	if input.Link != nil {
		link := strings.TrimSpace(*input.Link)
		if link != "" {
			if err := validateLink(link); err != nil {
				return nil, err
			}
		}
		item.Link = link
	}
	if input.Image != nil {
		item.Image = strings.TrimSpace(*input.Image)
	}
	if input.Extract != nil {
		extract := *input.Extract
		if extract != "" {
			normalized, err := s.normalize.Normalize(extract)
			if err != nil {
				return nil, err
			}
			extract = normalized
		}
		item.Extract = extract
	}
	if input.OwnerComment != nil {
		item.OwnerComment = strings.TrimSpace(*input.OwnerComment)
	}

	updatedAt := s.now()
	item.UpdatedAt = &updatedAt

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("アイテムの更新に失敗しました: %w", err)
	}

	return item, nil
}

// SoftDelete はアイテムを論理削除する。既に削除済みの場合は冪等（no-op）。
// コメントとタグ関連は削除せず保持される（復元時にそのまま戻る）。
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return model.NewItemNotFoundError(id)
	}
	if item.Deletion.IsDeleted() {
		return nil
	}

	if err := s.itemRepo.SetDeletion(ctx, id, model.DeletedAt(s.now())); err != nil {
		return fmt.Errorf("アイテムの削除に失敗しました: %w", err)
	}

	slog.Info("アイテムを論理削除しました",
		slog.String("item_id", id),
	)

	return nil
}

// Restore は論理削除されたアイテムを復元する。削除されていない場合は冪等（no-op）。
func (s *Service) Restore(ctx context.Context, id string) error {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return model.NewItemNotFoundError(id)
	}
	if !item.Deletion.IsDeleted() {
		return nil
	}

	if err := s.itemRepo.SetDeletion(ctx, id, model.Active()); err != nil {
		return fmt.Errorf("アイテムの復元に失敗しました: %w", err)
	}

	slog.Info("アイテムを復元しました",
		slog.String("item_id", id),
	)

	return nil
}

// validateTitle はタイトルを検証する。
func validateTitle(title string) error {
	if title == "" {
		return model.NewInvalidTitleError("タイトルが入力されていません")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewInvalidTitleError(
			fmt.Sprintf("タイトルは%d文字以内で入力してください", maxTitleLength))
	}
	return nil
}

// validateLink はリンクURLがhttp/httpsの絶対URLであることを検証する。
func validateLink(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return model.NewInvalidURLError(err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.NewInvalidURLError("http/httpsのURLのみ指定できます")
	}
	if u.Host == "" {
		return model.NewInvalidURLError("ホスト名が指定されていません")
	}
	return nil
}

// encodeCursor はカーソル文字列を生成する。
// 形式は「エポック秒.アイテムID」。created_atは秒精度のため、
// 同一秒に作成された行の取りこぼしを防ぐ目的でIDを副次キーとして持つ。
func encodeCursor(t time.Time, id string) string {
	return strconv.FormatInt(t.Unix(), 10) + "." + id
}

// decodeCursor はカーソル文字列を解析する。空文字列はゼロ値（先頭から取得）を返す。
func decodeCursor(cursor string) (repository.ListCursor, error) {
	if cursor == "" {
		return repository.ListCursor{}, nil
	}
	epochStr, id, ok := strings.Cut(cursor, ".")
	if !ok || id == "" {
		return repository.ListCursor{}, model.NewInvalidCursorError(cursor)
	}
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil || epoch <= 0 {
		return repository.ListCursor{}, model.NewInvalidCursorError(cursor)
	}
	return repository.ListCursor{CreatedAt: time.Unix(epoch, 0), ID: id}, nil
}

package item

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/preview"
	"github.com/hitoshi/hedge/internal/repository"
	"github.com/hitoshi/hedge/internal/richtext"
)

// --- モック ---

type mockItemRepo struct {
	createFn             func(ctx context.Context, item *model.Item) error
	findByIDFn           func(ctx context.Context, id string) (*model.Item, error)
	listActiveFn         func(ctx context.Context, cursor repository.ListCursor, limit int) ([]*model.Item, error)
	updateFn             func(ctx context.Context, item *model.Item) error
	incrementViewCountFn func(ctx context.Context, id string) error
	setDeletionFn        func(ctx context.Context, id string, d model.Deletion) error
}

func (m *mockItemRepo) Create(ctx context.Context, item *model.Item) error {
	if m.createFn != nil {
		return m.createFn(ctx, item)
	}
	return nil
}
func (m *mockItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockItemRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Item, error) {
	return nil, nil
}
func (m *mockItemRepo) ListActive(ctx context.Context, cursor repository.ListCursor, limit int) ([]*model.Item, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx, cursor, limit)
	}
	return nil, nil
}
func (m *mockItemRepo) Update(ctx context.Context, item *model.Item) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, item)
	}
	return nil
}
func (m *mockItemRepo) IncrementViewCount(ctx context.Context, id string) error {
	if m.incrementViewCountFn != nil {
		return m.incrementViewCountFn(ctx, id)
	}
	return nil
}
func (m *mockItemRepo) SetDeletion(ctx context.Context, id string, d model.Deletion) error {
	if m.setDeletionFn != nil {
		return m.setDeletionFn(ctx, id, d)
	}
	return nil
}
func (m *mockItemRepo) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return nil, nil
}
func (m *mockItemRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	return 0, nil
}

type mockNormalizer struct {
	normalizeFn func(raw string) (string, error)
}

func (m *mockNormalizer) Normalize(raw string) (string, error) {
	if m.normalizeFn != nil {
		return m.normalizeFn(raw)
	}
	return raw, nil
}

type mockPreviewFetcher struct {
	fetchFn func(ctx context.Context, inputURL string) (*preview.Preview, error)
}

func (m *mockPreviewFetcher) Fetch(ctx context.Context, inputURL string) (*preview.Preview, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, inputURL)
	}
	return nil, errors.New("not configured")
}

// --- テスト ---

// TestService_Create はアイテム作成の正常系を検証する。
func TestService_Create(t *testing.T) {
	var created *model.Item
	repo := &mockItemRepo{
		createFn: func(ctx context.Context, item *model.Item) error {
			created = item
			return nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	item, err := svc.Create(context.Background(), CreateInput{
		Title:   "面白い記事",
		Link:    "https://example.com/article",
		Extract: `{"type":"doc","content":[]}`,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if item.ID == "" {
		t.Error("expected generated id, got empty string")
	}
	if item.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if item.Deletion.IsDeleted() {
		t.Error("new item should not be deleted")
	}
	if created == nil {
		t.Fatal("expected repository Create to be called")
	}
}

// TestService_Create_InvalidInput は不正な入力が拒否されることを検証する。
func TestService_Create_InvalidInput(t *testing.T) {
	svc := NewService(&mockItemRepo{}, &mockNormalizer{}, nil, nil)

	tests := []struct {
		name     string
		input    CreateInput
		wantCode string
	}{
		{"タイトルなし", CreateInput{Title: ""}, model.ErrCodeInvalidTitle},
		{"不正なスキーム", CreateInput{Title: "t", Link: "ftp://example.com"}, model.ErrCodeInvalidURL},
		{"ホストなし", CreateInput{Title: "t", Link: "https://"}, model.ErrCodeInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

// TestService_Create_NormalizesExtract はextractが正規化されて保存されることを検証する。
func TestService_Create_NormalizesExtract(t *testing.T) {
	normalizer := &mockNormalizer{
		normalizeFn: func(raw string) (string, error) {
			return "normalized:" + raw, nil
		},
	}
	var created *model.Item
	repo := &mockItemRepo{
		createFn: func(ctx context.Context, item *model.Item) error {
			created = item
			return nil
		},
	}

	svc := NewService(repo, normalizer, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{Title: "t", Extract: "doc"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Extract != "normalized:doc" {
		t.Errorf("Extract = %q, want %q", created.Extract, "normalized:doc")
	}
}

// TestService_Create_InvalidExtract は不正なドキュメントで作成が失敗することを検証する。
func TestService_Create_InvalidExtract(t *testing.T) {
	normalizer := &mockNormalizer{
		normalizeFn: func(raw string) (string, error) {
			return "", model.NewInvalidDocumentError("不正なドキュメント")
		},
	}

	svc := NewService(&mockItemRepo{}, normalizer, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{Title: "t", Extract: "broken"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidDocument {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidDocument)
	}
}

// TestService_Create_InvalidExtract_RealNormalizer は実際のノーマライザを通した
// 検証失敗がINVALID_DOCUMENTとして返ることを検証する。
func TestService_Create_InvalidExtract_RealNormalizer(t *testing.T) {
	svc := NewService(&mockItemRepo{}, richtext.NewNormalizer(), nil, nil)

	cases := map[string]string{
		"不正なJSON":   "{not json",
		"不正なルート種別": `{"type":"html","children":[]}`,
	}
	for name, raw := range cases {
		_, err := svc.Create(context.Background(), CreateInput{Title: "t", Extract: raw})
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("%s: expected APIError, got %v", name, err)
		}
		if apiErr.Code != model.ErrCodeInvalidDocument {
			t.Errorf("%s: Code = %q, want %q", name, apiErr.Code, model.ErrCodeInvalidDocument)
		}
	}
}

// TestService_Create_EnrichesFromPreview はプレビュー情報でtitle/imageが補完されることを検証する。
func TestService_Create_EnrichesFromPreview(t *testing.T) {
	fetcher := &mockPreviewFetcher{
		fetchFn: func(ctx context.Context, inputURL string) (*preview.Preview, error) {
			return &preview.Preview{
				Title: "プレビュータイトル",
				Image: "https://example.com/ogp.png",
			}, nil
		},
	}

	svc := NewService(&mockItemRepo{}, &mockNormalizer{}, fetcher, nil)

	item, err := svc.Create(context.Background(), CreateInput{
		Link: "https://example.com/article",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if item.Title != "プレビュータイトル" {
		t.Errorf("Title = %q, want %q", item.Title, "プレビュータイトル")
	}
	if item.Image != "https://example.com/ogp.png" {
		t.Errorf("Image = %q, want %q", item.Image, "https://example.com/ogp.png")
	}
}

// TestService_Create_PreviewFailureDoesNotBlock はプレビュー取得失敗でも作成が成功することを検証する。
func TestService_Create_PreviewFailureDoesNotBlock(t *testing.T) {
	fetcher := &mockPreviewFetcher{
		fetchFn: func(ctx context.Context, inputURL string) (*preview.Preview, error) {
			return nil, errors.New("fetch failed")
		},
	}

	svc := NewService(&mockItemRepo{}, &mockNormalizer{}, fetcher, nil)

	item, err := svc.Create(context.Background(), CreateInput{
		Title: "手動タイトル",
		Link:  "https://example.com/article",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if item.Title != "手動タイトル" {
		t.Errorf("Title = %q, want %q", item.Title, "手動タイトル")
	}
}

// TestService_Get は取得時に閲覧カウンタが加算されることを検証する。
func TestService_Get(t *testing.T) {
	incremented := false
	repo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			return &model.Item{ID: id, Title: "t", ViewCount: 5, Deletion: model.Active()}, nil
		},
		incrementViewCountFn: func(ctx context.Context, id string) error {
			incremented = true
			return nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	item, err := svc.Get(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !incremented {
		t.Error("expected IncrementViewCount to be called")
	}
	if item.ViewCount != 6 {
		t.Errorf("ViewCount = %d, want 6", item.ViewCount)
	}
}

// TestService_Get_NotFoundAndDeleted は存在しない・削除済みアイテムのエラーを検証する。
func TestService_Get_NotFoundAndDeleted(t *testing.T) {
	repo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			if id == "deleted-item" {
				return &model.Item{ID: id, Deletion: model.DeletedAt(time.Now())}, nil
			}
			return nil, nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	_, err := svc.Get(context.Background(), "nonexistent")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeItemNotFound {
		t.Errorf("expected ITEM_NOT_FOUND, got %v", err)
	}

	_, err = svc.Get(context.Background(), "deleted-item")
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeItemDeleted {
		t.Errorf("expected ITEM_DELETED, got %v", err)
	}
}

// TestService_List_Pagination はlimit+1取得によるHasMore判定とカーソル生成を検証する。
func TestService_List_Pagination(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockItemRepo{
		listActiveFn: func(ctx context.Context, cursor repository.ListCursor, limit int) ([]*model.Item, error) {
			if limit != 3 {
				t.Errorf("limit = %d, want 3 (requested+1)", limit)
			}
			// limit+1件返してHasMoreを誘発する
			items := make([]*model.Item, 3)
			for i := range items {
				items[i] = &model.Item{
					ID:        "item-" + string(rune('a'+i)),
					CreatedAt: base.Add(-time.Duration(i) * time.Hour),
				}
			}
			return items, nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	result, err := svc.List(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(result.Items))
	}
	if !result.HasMore {
		t.Error("expected HasMore = true")
	}
	wantCursor := encodeCursor(base.Add(-1*time.Hour), "item-b")
	if result.NextCursor != wantCursor {
		t.Errorf("NextCursor = %q, want %q", result.NextCursor, wantCursor)
	}
}

// TestService_List_CursorCarriesBoundaryID はカーソルが境界行のIDを保持し、
// 同一秒に作成された行の取りこぼしを防ぐことを検証する。
func TestService_List_CursorCarriesBoundaryID(t *testing.T) {
	boundary := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var got repository.ListCursor
	repo := &mockItemRepo{
		listActiveFn: func(ctx context.Context, cursor repository.ListCursor, limit int) ([]*model.Item, error) {
			got = cursor
			return nil, nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	if _, err := svc.List(context.Background(), encodeCursor(boundary, "item-b"), 10); err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if !got.CreatedAt.Equal(boundary) {
		t.Errorf("cursor.CreatedAt = %v, want %v", got.CreatedAt, boundary)
	}
	if got.ID != "item-b" {
		t.Errorf("cursor.ID = %q, want %q", got.ID, "item-b")
	}
}

// TestService_List_LastPage は最終ページでHasMoreがfalseになることを検証する。
func TestService_List_LastPage(t *testing.T) {
	repo := &mockItemRepo{
		listActiveFn: func(ctx context.Context, cursor repository.ListCursor, limit int) ([]*model.Item, error) {
			return []*model.Item{{ID: "item-last", CreatedAt: time.Now()}}, nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	result, err := svc.List(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if result.HasMore {
		t.Error("expected HasMore = false")
	}
	if result.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty", result.NextCursor)
	}
}

// TestService_List_InvalidCursor は不正なカーソルがINVALID_CURSORになることを検証する。
func TestService_List_InvalidCursor(t *testing.T) {
	svc := NewService(&mockItemRepo{}, &mockNormalizer{}, nil, nil)

	for _, cursor := range []string{"abc", "-5", "0", "abc.item-1", "-5.item-1", "1717243200."} {
		_, err := svc.List(context.Background(), cursor, 10)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError for cursor %q, got %v", cursor, err)
		}
		if apiErr.Code != model.ErrCodeInvalidCursor {
			t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCursor)
		}
	}
}

// TestService_Update は更新時にupdated_atが設定されることを検証する。
func TestService_Update(t *testing.T) {
	var updated *model.Item
	repo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			return &model.Item{ID: id, Title: "旧タイトル", Deletion: model.Active()}, nil
		},
		updateFn: func(ctx context.Context, item *model.Item) error {
			updated = item
			return nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	newTitle := "新タイトル"
	item, err := svc.Update(context.Background(), "item-1", UpdateInput{Title: &newTitle})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if item.Title != "新タイトル" {
		t.Errorf("Title = %q, want %q", item.Title, "新タイトル")
	}
	if item.UpdatedAt == nil {
		t.Error("expected UpdatedAt to be set")
	}
	if updated == nil {
		t.Fatal("expected repository Update to be called")
	}
}

// TestService_SoftDelete_Idempotent は削除済みアイテムの再削除がno-opであることを検証する。
func TestService_SoftDelete_Idempotent(t *testing.T) {
	setDeletionCalled := false
	repo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			return &model.Item{ID: id, Deletion: model.DeletedAt(time.Now())}, nil
		},
		setDeletionFn: func(ctx context.Context, id string, d model.Deletion) error {
			setDeletionCalled = true
			return nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	if err := svc.SoftDelete(context.Background(), "item-1"); err != nil {
		t.Fatalf("SoftDelete returned error: %v", err)
	}
	if setDeletionCalled {
		t.Error("SetDeletion should not be called for already-deleted item")
	}
}

// TestService_Restore は削除済みアイテムが復元されることを検証する。
func TestService_Restore(t *testing.T) {
	var restoredTo model.Deletion
	setDeletionCalled := false
	repo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			return &model.Item{ID: id, Deletion: model.DeletedAt(time.Now())}, nil
		},
		setDeletionFn: func(ctx context.Context, id string, d model.Deletion) error {
			setDeletionCalled = true
			restoredTo = d
			return nil
		},
	}

	svc := NewService(repo, &mockNormalizer{}, nil, nil)

	if err := svc.Restore(context.Background(), "item-1"); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if !setDeletionCalled {
		t.Fatal("expected SetDeletion to be called")
	}
	if restoredTo.IsDeleted() {
		t.Error("expected restore to set active state")
	}
}

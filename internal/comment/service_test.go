package comment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/repository"
	"github.com/hitoshi/hedge/internal/richtext"
)

// --- モック ---

type mockCommentRepo struct {
	createFn      func(ctx context.Context, comment *model.Comment) error
	findByIDFn    func(ctx context.Context, id string) (*model.Comment, error)
	listByItemFn  func(ctx context.Context, itemID string) ([]*model.Comment, error)
	setRemovedFn  func(ctx context.Context, id string, removed bool) error
	setDeletionFn func(ctx context.Context, id string, d model.Deletion) error
}

func (m *mockCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	if m.createFn != nil {
		return m.createFn(ctx, comment)
	}
	return nil
}
func (m *mockCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockCommentRepo) ListByItem(ctx context.Context, itemID string) ([]*model.Comment, error) {
	if m.listByItemFn != nil {
		return m.listByItemFn(ctx, itemID)
	}
	return nil, nil
}
func (m *mockCommentRepo) ListByParent(ctx context.Context, parentID string) ([]*model.Comment, error) {
	return nil, nil
}
func (m *mockCommentRepo) SetRemoved(ctx context.Context, id string, removed bool) error {
	if m.setRemovedFn != nil {
		return m.setRemovedFn(ctx, id, removed)
	}
	return nil
}
func (m *mockCommentRepo) SetDeletion(ctx context.Context, id string, d model.Deletion) error {
	if m.setDeletionFn != nil {
		return m.setDeletionFn(ctx, id, d)
	}
	return nil
}
func (m *mockCommentRepo) DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error) {
	return 0, nil
}

type mockItemRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Item, error)
}

func (m *mockItemRepo) Create(ctx context.Context, item *model.Item) error { return nil }
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
	return nil, nil
}
func (m *mockItemRepo) Update(ctx context.Context, item *model.Item) error { return nil }
func (m *mockItemRepo) IncrementViewCount(ctx context.Context, id string) error {
	return nil
}
func (m *mockItemRepo) SetDeletion(ctx context.Context, id string, d model.Deletion) error {
	return nil
}
func (m *mockItemRepo) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return nil, nil
}
func (m *mockItemRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	return 0, nil
}

type mockNormalizer struct{}

func (m *mockNormalizer) Normalize(raw string) (string, error) {
	return raw, nil
}

func activeItemRepo() *mockItemRepo {
	return &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			return &model.Item{ID: id, Title: "t", Deletion: model.Active()}, nil
		},
	}
}

// --- テスト ---

// TestService_Create_InvalidContent_RealNormalizer は実際のノーマライザを通した
// 検証失敗がINVALID_DOCUMENTとして返ることを検証する。
func TestService_Create_InvalidContent_RealNormalizer(t *testing.T) {
	svc := NewService(&mockCommentRepo{}, activeItemRepo(), richtext.NewNormalizer(), nil)

	_, err := svc.Create(context.Background(), CreateInput{
		ItemID:  "item-1",
		Author:  "ゲスト",
		Content: "{not json",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidDocument {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidDocument)
	}
}

// TestService_Create はコメント作成の正常系を検証する。
func TestService_Create(t *testing.T) {
	var created *model.Comment
	commentRepo := &mockCommentRepo{
		createFn: func(ctx context.Context, comment *model.Comment) error {
			created = comment
			return nil
		},
	}

	svc := NewService(commentRepo, activeItemRepo(), &mockNormalizer{}, nil)

	comment, err := svc.Create(context.Background(), CreateInput{
		ItemID:  "item-1",
		Author:  "ゲスト",
		Content: `{"type":"doc","content":[]}`,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if comment.ID == "" {
		t.Error("expected generated id, got empty string")
	}
	if created == nil {
		t.Fatal("expected repository Create to be called")
	}
}

// TestService_Create_ItemNotActive は存在しない・削除済みアイテムへの投稿が拒否されることを検証する。
func TestService_Create_ItemNotActive(t *testing.T) {
	itemRepo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			if id == "deleted-item" {
				return &model.Item{ID: id, Deletion: model.DeletedAt(time.Now())}, nil
			}
			return nil, nil
		},
	}

	svc := NewService(&mockCommentRepo{}, itemRepo, &mockNormalizer{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{ItemID: "nonexistent", Author: "g", Content: "c"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeItemNotFound {
		t.Errorf("expected ITEM_NOT_FOUND, got %v", err)
	}

	_, err = svc.Create(context.Background(), CreateInput{ItemID: "deleted-item", Author: "g", Content: "c"})
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeItemDeleted {
		t.Errorf("expected ITEM_DELETED, got %v", err)
	}
}

// TestService_Create_ParentValidation は親参照の健全性検証を検証する。
func TestService_Create_ParentValidation(t *testing.T) {
	commentRepo := &mockCommentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Comment, error) {
			switch id {
			case "parent-same-item":
				return &model.Comment{ID: id, ItemID: "item-1", Deletion: model.Active()}, nil
			case "parent-other-item":
				return &model.Comment{ID: id, ItemID: "item-2", Deletion: model.Active()}, nil
			case "parent-deleted":
				return &model.Comment{ID: id, ItemID: "item-1", Deletion: model.DeletedAt(time.Now())}, nil
			}
			return nil, nil
		},
	}

	svc := NewService(commentRepo, activeItemRepo(), &mockNormalizer{}, nil)

	strPtr := func(s string) *string { return &s }

	tests := []struct {
		name     string
		parentID *string
		wantCode string
	}{
		{"実在する同一アイテムの親", strPtr("parent-same-item"), ""},
		{"存在しない親", strPtr("parent-missing"), model.ErrCodeParentNotFound},
		{"削除済みの親", strPtr("parent-deleted"), model.ErrCodeParentNotFound},
		{"別アイテムの親", strPtr("parent-other-item"), model.ErrCodeParentMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), CreateInput{
				ItemID:   "item-1",
				ParentID: tt.parentID,
				Author:   "ゲスト",
				Content:  "c",
			})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Create returned error: %v", err)
				}
				return
			}
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

// TestService_ValidateParent_SelfReference は自身を親に指定した参照が拒否されることを検証する。
func TestService_ValidateParent_SelfReference(t *testing.T) {
	svc := NewService(&mockCommentRepo{}, activeItemRepo(), &mockNormalizer{}, nil)

	err := svc.validateParent(context.Background(), "comment-1", "item-1", "comment-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSelfParent {
		t.Errorf("expected SELF_PARENT, got %v", err)
	}
}

// TestBuildThread は親子関係がツリーとして組み立てられることを検証する。
func TestBuildThread(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	comments := []*model.Comment{
		{ID: "c1", ItemID: "item-1", CreatedAt: base},
		{ID: "c2", ItemID: "item-1", ParentID: strPtr("c1"), CreatedAt: base.Add(time.Minute)},
		{ID: "c3", ItemID: "item-1", ParentID: strPtr("c1"), CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c4", ItemID: "item-1", ParentID: strPtr("c2"), CreatedAt: base.Add(3 * time.Minute)},
		{ID: "c5", ItemID: "item-1", CreatedAt: base.Add(4 * time.Minute)},
	}

	roots := buildThread(comments)

	if len(roots) != 2 {
		t.Fatalf("len(roots) = %d, want 2", len(roots))
	}
	if roots[0].Comment.ID != "c1" || roots[1].Comment.ID != "c5" {
		t.Errorf("root ids = %s, %s, want c1, c5", roots[0].Comment.ID, roots[1].Comment.ID)
	}
	if len(roots[0].Replies) != 2 {
		t.Fatalf("len(c1.Replies) = %d, want 2", len(roots[0].Replies))
	}
	if roots[0].Replies[0].Comment.ID != "c2" {
		t.Errorf("first reply = %s, want c2", roots[0].Replies[0].Comment.ID)
	}
	if len(roots[0].Replies[0].Replies) != 1 || roots[0].Replies[0].Replies[0].Comment.ID != "c4" {
		t.Error("expected c4 nested under c2")
	}
}

// TestBuildThread_DanglingParent は親が解決できないコメントが
// 切り離されたルートとして浮上することを検証する。
func TestBuildThread_DanglingParent(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// c-orphanの親は論理削除されて結果集合に含まれない
	comments := []*model.Comment{
		{ID: "c1", ItemID: "item-1", CreatedAt: base},
		{ID: "c-orphan", ItemID: "item-1", ParentID: strPtr("c-deleted"), CreatedAt: base.Add(time.Minute)},
	}

	roots := buildThread(comments)

	if len(roots) != 2 {
		t.Fatalf("len(roots) = %d, want 2", len(roots))
	}
	if roots[0].Dangling {
		t.Error("c1 should not be dangling")
	}
	if !roots[1].Dangling {
		t.Error("c-orphan should be flagged dangling")
	}
	if roots[1].Comment.ID != "c-orphan" {
		t.Errorf("dangling root = %s, want c-orphan", roots[1].Comment.ID)
	}
}

// TestService_Remove は非表示化がremovedフラグのみ設定することを検証する。
func TestService_Remove(t *testing.T) {
	removedSet := false
	commentRepo := &mockCommentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Comment, error) {
			return &model.Comment{ID: id, ItemID: "item-1", Deletion: model.Active()}, nil
		},
		setRemovedFn: func(ctx context.Context, id string, removed bool) error {
			if !removed {
				t.Errorf("removed = false, want true")
			}
			removedSet = true
			return nil
		},
	}

	svc := NewService(commentRepo, activeItemRepo(), &mockNormalizer{}, nil)

	if err := svc.Remove(context.Background(), "c1"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if !removedSet {
		t.Error("expected SetRemoved to be called")
	}
}

// TestService_SoftDelete は論理削除がDeletionを設定することを検証する。
func TestService_SoftDelete(t *testing.T) {
	var deletion model.Deletion
	commentRepo := &mockCommentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Comment, error) {
			return &model.Comment{ID: id, ItemID: "item-1", Deletion: model.Active()}, nil
		},
		setDeletionFn: func(ctx context.Context, id string, d model.Deletion) error {
			deletion = d
			return nil
		},
	}

	svc := NewService(commentRepo, activeItemRepo(), &mockNormalizer{}, nil)

	if err := svc.SoftDelete(context.Background(), "c1"); err != nil {
		t.Fatalf("SoftDelete returned error: %v", err)
	}
	if !deletion.IsDeleted() {
		t.Error("expected deletion state to be set")
	}
}

// TestService_SoftDelete_NotFound は存在しないコメントの削除がエラーになることを検証する。
func TestService_SoftDelete_NotFound(t *testing.T) {
	svc := NewService(&mockCommentRepo{}, activeItemRepo(), &mockNormalizer{}, nil)

	err := svc.SoftDelete(context.Background(), "nonexistent")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCommentNotFound {
		t.Errorf("expected COMMENT_NOT_FOUND, got %v", err)
	}
}

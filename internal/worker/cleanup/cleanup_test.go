package cleanup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// --- モック定義 ---

type mockSessionSweeper struct {
	deleteCreatedBeforeFn func(ctx context.Context, cutoff time.Time) (int64, error)
	cutoff                time.Time
	called                bool
}

func (m *mockSessionSweeper) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.called = true
	m.cutoff = cutoff
	if m.deleteCreatedBeforeFn != nil {
		return m.deleteCreatedBeforeFn(ctx, cutoff)
	}
	return 0, nil
}

type mockItemPurgeStore struct {
	listSoftDeletedBeforeFn func(ctx context.Context, cutoff time.Time) ([]string, error)
	deleteByIDsFn           func(ctx context.Context, ids []string) (int64, error)
	deletedIDs              []string
}

func (m *mockItemPurgeStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	if m.listSoftDeletedBeforeFn != nil {
		return m.listSoftDeletedBeforeFn(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockItemPurgeStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	m.deletedIDs = ids
	if m.deleteByIDsFn != nil {
		return m.deleteByIDsFn(ctx, ids)
	}
	return int64(len(ids)), nil
}

type mockDependentPurgeStore struct {
	deleteByItemIDsFn func(ctx context.Context, itemIDs []string) (int64, error)
	itemIDs           []string
	called            bool
}

func (m *mockDependentPurgeStore) DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error) {
	m.called = true
	m.itemIDs = itemIDs
	if m.deleteByItemIDsFn != nil {
		return m.deleteByItemIDsFn(ctx, itemIDs)
	}
	return 0, nil
}

type mockTagAssocPurgeStore struct {
	mockDependentPurgeStore
	deleteByTagIDFn func(ctx context.Context, tagID string) (int64, error)
	tagIDs          []string
}

func (m *mockTagAssocPurgeStore) DeleteByTagID(ctx context.Context, tagID string) (int64, error) {
	m.tagIDs = append(m.tagIDs, tagID)
	if m.deleteByTagIDFn != nil {
		return m.deleteByTagIDFn(ctx, tagID)
	}
	return 0, nil
}

type mockTagPurgeStore struct {
	listSoftDeletedBeforeFn func(ctx context.Context, cutoff time.Time) ([]string, error)
	deleteByIDsFn           func(ctx context.Context, ids []string) (int64, error)
	deletedIDs              []string
}

func (m *mockTagPurgeStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	if m.listSoftDeletedBeforeFn != nil {
		return m.listSoftDeletedBeforeFn(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockTagPurgeStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	m.deletedIDs = ids
	if m.deleteByIDsFn != nil {
		return m.deleteByIDsFn(ctx, ids)
	}
	return int64(len(ids)), nil
}

type mockCollector struct {
	sessionsSwept int64
	itemsPurged   int64
}

func (m *mockCollector) RecordSessionsSwept(count int64) { m.sessionsSwept += count }
func (m *mockCollector) RecordItemsPurged(count int64)   { m.itemsPurged += count }

// --- SessionSweepJob テスト ---

func TestSessionSweepJob_Run_CutoffRespectsTTL(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSessionSweeper{}

	job := NewSessionSweepJob(sweeper, newTestLogger(&buf), nil)
	job.SessionTTL = 24 * time.Hour

	before := time.Now()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !sweeper.called {
		t.Fatal("expected DeleteCreatedBefore to be called")
	}

	wantCutoff := before.Add(-24 * time.Hour)
	diff := sweeper.cutoff.Sub(wantCutoff)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Minute {
		t.Errorf("cutoff = %v, want ~%v", sweeper.cutoff, wantCutoff)
	}
}

func TestSessionSweepJob_Run_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSessionSweeper{
		deleteCreatedBeforeFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 7, nil
		},
	}
	collector := &mockCollector{}

	job := NewSessionSweepJob(sweeper, newTestLogger(&buf), collector)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if collector.sessionsSwept != 7 {
		t.Errorf("sessionsSwept = %d, want 7", collector.sessionsSwept)
	}
	if !strings.Contains(buf.String(), "swept_count") {
		t.Error("expected completion log with swept_count")
	}
}

func TestSessionSweepJob_Run_StoreError(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &mockSessionSweeper{
		deleteCreatedBeforeFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}

	job := NewSessionSweepJob(sweeper, newTestLogger(&buf), nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "セッションスイープの実行に失敗") {
		t.Errorf("unexpected error message: %v", err)
	}
}

// --- PurgeJob テスト ---

func TestPurgeJob_Run_DeletesDependentsFirst(t *testing.T) {
	var buf bytes.Buffer

	var order []string
	items := &mockItemPurgeStore{
		listSoftDeletedBeforeFn: func(ctx context.Context, cutoff time.Time) ([]string, error) {
			return []string{"item-1", "item-2"}, nil
		},
		deleteByIDsFn: func(ctx context.Context, ids []string) (int64, error) {
			order = append(order, "items")
			return int64(len(ids)), nil
		},
	}
	comments := &mockDependentPurgeStore{
		deleteByItemIDsFn: func(ctx context.Context, itemIDs []string) (int64, error) {
			order = append(order, "comments")
			return 3, nil
		},
	}
	itemTags := &mockTagAssocPurgeStore{
		mockDependentPurgeStore: mockDependentPurgeStore{
			deleteByItemIDsFn: func(ctx context.Context, itemIDs []string) (int64, error) {
				order = append(order, "item_tags")
				return 2, nil
			},
		},
	}
	collector := &mockCollector{}

	job := NewPurgeJob(items, &mockTagPurgeStore{}, comments, itemTags, newTestLogger(&buf), collector)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 従属行を先に消してからアイテム本体を消す
	want := []string{"comments", "item_tags", "items"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	if len(comments.itemIDs) != 2 {
		t.Errorf("comments deleted for %d items, want 2", len(comments.itemIDs))
	}
	if collector.itemsPurged != 2 {
		t.Errorf("itemsPurged = %d, want 2", collector.itemsPurged)
	}
}

func TestPurgeJob_Run_NoTargets(t *testing.T) {
	var buf bytes.Buffer
	items := &mockItemPurgeStore{}
	comments := &mockDependentPurgeStore{}
	itemTags := &mockTagAssocPurgeStore{}

	job := NewPurgeJob(items, &mockTagPurgeStore{}, comments, itemTags, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 対象がない場合は従属行の削除に進まない
	if comments.called || itemTags.called {
		t.Error("expected no dependent deletion when there are no targets")
	}
}

func TestPurgeJob_Run_DependentDeleteError(t *testing.T) {
	var buf bytes.Buffer
	items := &mockItemPurgeStore{
		listSoftDeletedBeforeFn: func(ctx context.Context, cutoff time.Time) ([]string, error) {
			return []string{"item-1"}, nil
		},
	}
	comments := &mockDependentPurgeStore{
		deleteByItemIDsFn: func(ctx context.Context, itemIDs []string) (int64, error) {
			return 0, errors.New("deadlock detected")
		},
	}
	itemTags := &mockTagAssocPurgeStore{}

	job := NewPurgeJob(items, &mockTagPurgeStore{}, comments, itemTags, newTestLogger(&buf), nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	// コメント削除に失敗したらアイテム本体は消さない
	if items.deletedIDs != nil {
		t.Error("expected item deletion to be skipped on dependent failure")
	}
	if itemTags.called {
		t.Error("expected item_tags deletion to be skipped on comment failure")
	}
}

func TestPurgeJob_Run_PurgesExpiredTags(t *testing.T) {
	var buf bytes.Buffer
	items := &mockItemPurgeStore{}
	comments := &mockDependentPurgeStore{}
	itemTags := &mockTagAssocPurgeStore{}
	tags := &mockTagPurgeStore{
		listSoftDeletedBeforeFn: func(ctx context.Context, cutoff time.Time) ([]string, error) {
			return []string{"tag-1", "tag-2"}, nil
		},
	}

	job := NewPurgeJob(items, tags, comments, itemTags, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// タグ関連はタグごとに削除してからタグ本体を消す
	if len(itemTags.tagIDs) != 2 {
		t.Fatalf("DeleteByTagID called for %v, want 2 tags", itemTags.tagIDs)
	}
	if len(tags.deletedIDs) != 2 {
		t.Errorf("tags deleted = %v, want 2", tags.deletedIDs)
	}
}

func TestPurgeJob_Run_TagAssocDeleteError(t *testing.T) {
	var buf bytes.Buffer
	items := &mockItemPurgeStore{}
	comments := &mockDependentPurgeStore{}
	itemTags := &mockTagAssocPurgeStore{
		deleteByTagIDFn: func(ctx context.Context, tagID string) (int64, error) {
			return 0, errors.New("deadlock detected")
		},
	}
	tags := &mockTagPurgeStore{
		listSoftDeletedBeforeFn: func(ctx context.Context, cutoff time.Time) ([]string, error) {
			return []string{"tag-1"}, nil
		},
	}

	job := NewPurgeJob(items, tags, comments, itemTags, newTestLogger(&buf), nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	// 関連行の削除に失敗したらタグ本体は消さない
	if tags.deletedIDs != nil {
		t.Error("expected tag deletion to be skipped on association failure")
	}
}

func TestNewPurgeJob_DefaultRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewPurgeJob(&mockItemPurgeStore{}, &mockTagPurgeStore{}, &mockDependentPurgeStore{}, &mockTagAssocPurgeStore{}, newTestLogger(&buf), nil)

	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

// Package cleanup はゲストセッションのTTLスイープと
// 論理削除済みアイテムの物理削除（パージ）ジョブを提供する。
// どちらも定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionSweeper はTTLスイープジョブが必要とするセッションストアのインターフェース。
type SessionSweeper interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ItemPurgeStore はパージジョブが必要とするアイテムストアのインターフェース。
type ItemPurgeStore interface {
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// DependentPurgeStore はアイテムに従属する行の物理削除インターフェース。
// 外部キーによるCASCADEが存在しないため、従属行の削除は
// アプリケーション層が明示的に行う。
type DependentPurgeStore interface {
	DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error)
}

// TagPurgeStore はパージジョブが必要とするタグストアのインターフェース。
type TagPurgeStore interface {
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// TagAssocPurgeStore はアイテム・タグ関連行の物理削除インターフェース。
// アイテム側とタグ側のどちらのパージでも関連行を先に消す必要がある。
type TagAssocPurgeStore interface {
	DeleteByItemIDs(ctx context.Context, itemIDs []string) (int64, error)
	DeleteByTagID(ctx context.Context, tagID string) (int64, error)
}

// MetricsCollector はクリーンアップジョブが記録するメトリクスのインターフェース。
type MetricsCollector interface {
	RecordSessionsSwept(count int64)
	RecordItemsPurged(count int64)
}

// SessionSweepJob はTTLを超過したゲストセッションの削除ジョブ。
// セッションはサーバー側の絶対TTLで失効し、アクセスによる延長はない。
type SessionSweepJob struct {
	sessions   SessionSweeper
	logger     *slog.Logger
	collector  MetricsCollector
	SessionTTL time.Duration // セッションの有効期間（デフォルト: 30日）
}

// NewSessionSweepJob は新しいSessionSweepJobを生成する。
// collectorはnilを許容する。デフォルトのTTLは30日。
func NewSessionSweepJob(sessions SessionSweeper, logger *slog.Logger, collector MetricsCollector) *SessionSweepJob {
	return &SessionSweepJob{
		sessions:   sessions,
		logger:     logger,
		collector:  collector,
		SessionTTL: 30 * 24 * time.Hour,
	}
}

// Run はcreated_atがTTLを超過したセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *SessionSweepJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.Add(-j.SessionTTL)

	sweptCount, err := j.sessions.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("セッションスイープジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("cutoff", cutoff.Format(time.RFC3339)),
		)
		return fmt.Errorf("セッションスイープの実行に失敗: %w", err)
	}

	if j.collector != nil {
		j.collector.RecordSessionsSwept(sweptCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションスイープジョブが完了しました",
		slog.Int64("swept_count", sweptCount),
		slog.String("cutoff", cutoff.Format(time.RFC3339)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// PurgeJob は保持期間を超過した論理削除済みアイテムとタグの物理削除ジョブ。
// ストアに外部キーがないため、従属行（コメント・タグ関連）を先に削除してから
// 本体を削除する。途中で失敗した場合でも、残った従属行は
// 次回実行時に同じ対象として再処理されるため安全に再試行できる。
type PurgeJob struct {
	items         ItemPurgeStore
	tags          TagPurgeStore
	comments      DependentPurgeStore
	itemTags      TagAssocPurgeStore
	logger        *slog.Logger
	collector     MetricsCollector
	RetentionDays int // 論理削除からの保持日数（デフォルト: 90）
}

// NewPurgeJob は新しいPurgeJobを生成する。
// collectorはnilを許容する。デフォルトの保持日数は90日。
func NewPurgeJob(items ItemPurgeStore, tags TagPurgeStore, comments DependentPurgeStore, itemTags TagAssocPurgeStore, logger *slog.Logger, collector MetricsCollector) *PurgeJob {
	return &PurgeJob{
		items:         items,
		tags:          tags,
		comments:      comments,
		itemTags:      itemTags,
		logger:        logger,
		collector:     collector,
		RetentionDays: 90,
	}
}

// Run は論理削除からRetentionDays日を超過したアイテムとタグを物理削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	if err := j.purgeItems(ctx, cutoff); err != nil {
		return err
	}
	if err := j.purgeTags(ctx, cutoff); err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("パージジョブが完了しました",
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// purgeItems は期限を超過したアイテムを従属行とともに物理削除する。
// 削除順序: コメント → タグ関連 → アイテム本体。
func (j *PurgeJob) purgeItems(ctx context.Context, cutoff time.Time) error {
	itemIDs, err := j.items.ListSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("パージ対象アイテムの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("パージ対象の取得に失敗: %w", err)
	}

	if len(itemIDs) == 0 {
		j.logger.Info("パージ対象のアイテムはありません",
			slog.String("cutoff", cutoff.Format(time.RFC3339)),
		)
		return nil
	}

	commentCount, err := j.comments.DeleteByItemIDs(ctx, itemIDs)
	if err != nil {
		j.logger.Error("従属コメントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("item_count", len(itemIDs)),
		)
		return fmt.Errorf("従属コメントの削除に失敗: %w", err)
	}

	itemTagCount, err := j.itemTags.DeleteByItemIDs(ctx, itemIDs)
	if err != nil {
		j.logger.Error("タグ関連の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("item_count", len(itemIDs)),
		)
		return fmt.Errorf("タグ関連の削除に失敗: %w", err)
	}

	purgedCount, err := j.items.DeleteByIDs(ctx, itemIDs)
	if err != nil {
		j.logger.Error("アイテム本体の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("item_count", len(itemIDs)),
		)
		return fmt.Errorf("アイテム本体の削除に失敗: %w", err)
	}

	if j.collector != nil {
		j.collector.RecordItemsPurged(purgedCount)
	}

	j.logger.Info("アイテムのパージが完了しました",
		slog.Int64("purged_count", purgedCount),
		slog.Int64("comment_count", commentCount),
		slog.Int64("item_tag_count", itemTagCount),
	)

	return nil
}

// purgeTags は期限を超過したタグをタグ関連行とともに物理削除する。
// タグ関連はタグ単位で先に削除する。
func (j *PurgeJob) purgeTags(ctx context.Context, cutoff time.Time) error {
	tagIDs, err := j.tags.ListSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("パージ対象タグの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("パージ対象タグの取得に失敗: %w", err)
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var assocCount int64
	for _, tagID := range tagIDs {
		count, err := j.itemTags.DeleteByTagID(ctx, tagID)
		if err != nil {
			j.logger.Error("タグ関連の削除に失敗しました",
				slog.String("error", err.Error()),
				slog.String("tag_id", tagID),
			)
			return fmt.Errorf("タグ関連の削除に失敗: %w", err)
		}
		assocCount += count
	}

	purgedCount, err := j.tags.DeleteByIDs(ctx, tagIDs)
	if err != nil {
		j.logger.Error("タグ本体の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("tag_count", len(tagIDs)),
		)
		return fmt.Errorf("タグ本体の削除に失敗: %w", err)
	}

	j.logger.Info("タグのパージが完了しました",
		slog.Int64("purged_count", purgedCount),
		slog.Int64("item_tag_count", assocCount),
	)

	return nil
}

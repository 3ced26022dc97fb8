package repository

import (
	"database/sql"
	"time"

	"github.com/hitoshi/hedge/internal/model"
)

// ストアのタイムスタンプはすべてUnixエポック秒（BIGINT）、
// 真偽値フラグはINTEGER（0/1）で永続化される。
// このファイルの変換ヘルパーがモデル型との境界を一手に引き受ける。

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はNULLを空文字列に変換する。
func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// epochToTime はエポック秒をUTCのtime.Timeに変換する。
func epochToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// timeToEpoch はtime.Timeをエポック秒に変換する。
func timeToEpoch(t time.Time) int64 {
	return t.Unix()
}

// nullEpochToTimePtr はnullableなエポック秒を*time.Timeに変換する。
func nullEpochToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := epochToTime(v.Int64)
	return &t
}

// timePtrToNullEpoch は*time.Timeをnullableなエポック秒に変換する。
func timePtrToNullEpoch(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: timeToEpoch(*t), Valid: true}
}

// deletionFromNullEpoch はnullableなdeleted_at列をDeletion状態に変換する。
func deletionFromNullEpoch(v sql.NullInt64) model.Deletion {
	if !v.Valid {
		return model.Active()
	}
	return model.DeletedAt(epochToTime(v.Int64))
}

// deletionToNullEpoch はDeletion状態をnullableなdeleted_at列に変換する。
func deletionToNullEpoch(d model.Deletion) sql.NullInt64 {
	at, ok := d.At()
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: timeToEpoch(at), Valid: true}
}

// boolToFlag は真偽値をINTEGERフラグ（0/1）に変換する。
func boolToFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

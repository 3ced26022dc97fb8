// Package model はドメインモデルを定義する。
package model

import "time"

// GuestSession は未認証参加者のアイデンティティレコードを表す。
// guest_idは生成後に変更されない。論理削除マーカーを持たず、
// 期限切れは更新の不在によって判定される（TTLスイープはワーカーの責務）。
type GuestSession struct {
	GuestID     string
	DisplayName string
	CreatedAt   time.Time
}

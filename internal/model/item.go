// Package model はドメインモデルを定義する。
package model

import "time"

// Item は共有されたコンテンツ（リンク・画像・抜粋付き）を表す。
// extractは正規化済みのリッチテキストドキュメントで、ストアにとっては
// 不透明なシリアライズ済みテキストとして保存される。
type Item struct {
	ID           string
	Title        string
	Link         string
	Image        string
	Extract      string // シリアライズ済みリッチテキストドキュメント
	OwnerComment string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	ViewCount    int
	Deletion     Deletion
}

// ItemTag はアイテムとタグの関連を表す。
// 複合キー（item_id, tag_id）が同一性であり、重複関連は存在しない。
// 参照先の実在はエンジンレベルでは保証されないソフト外部キー。
type ItemTag struct {
	ItemID string
	TagID  string
}

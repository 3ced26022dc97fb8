// Package model はドメインモデルを定義する。
package model

import "time"

// Tag はアイテム分類用のタグを表す。
// nameの一意性はストアレベル（UNIQUE制約）で強制される。
// CreatedAtはライフサイクル列追加以前の既存行ではnilになりうる。
type Tag struct {
	ID        string
	Name      string
	CreatedAt *time.Time
	Deletion  Deletion
}

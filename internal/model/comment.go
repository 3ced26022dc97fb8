// Package model はドメインモデルを定義する。
package model

import "time"

// Comment はアイテムに対するコメントを表す。
// ParentIDがnilでない場合は同一アイテム上の親コメントを参照し、
// スレッドツリーを構成する。ツリーの健全性（親の実在・同一アイテム所属・
// 非循環）はストアでは強制されず、アプリケーション層が書き込み時に検証する。
type Comment struct {
	ID        string
	ItemID    string
	ParentID  *string
	Author    string
	Content   string // シリアライズ済みリッチテキストドキュメント
	CreatedAt time.Time
	Removed   bool // trueの場合は本文を隠すがスレッド構造は保持する
	Deletion  Deletion
}

// IsRemoved はコメントが非表示化（removed）または論理削除されているかを返す。
// removedは本文のみを隠すソフトな非表示、Deletionは一覧からの除外を意味する。
func (c *Comment) IsRemoved() bool {
	return c.Removed || c.Deletion.IsDeleted()
}

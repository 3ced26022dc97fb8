// Package model はドメインモデルを定義する。
package model

import "time"

// Deletion は論理削除のライフサイクル状態を表す。
// Active（削除されていない）と Deleted{at}（削除日時付きで削除済み）の
// 2状態のみを取り、nullableなタイムスタンプを生のオプショナル値として
// 扱う代わりに、削除セマンティクスを呼び出し側で明示する。
type Deletion struct {
	deleted bool
	at      time.Time
}

// Active は未削除状態のDeletionを返す。
func Active() Deletion {
	return Deletion{}
}

// DeletedAt は指定日時で削除済み状態のDeletionを返す。
func DeletedAt(at time.Time) Deletion {
	return Deletion{deleted: true, at: at}
}

// IsDeleted は削除済みかどうかを返す。
func (d Deletion) IsDeleted() bool {
	return d.deleted
}

// At は削除日時を返す。未削除の場合は2番目の戻り値がfalseになる。
func (d Deletion) At() (time.Time, bool) {
	if !d.deleted {
		return time.Time{}, false
	}
	return d.at, true
}

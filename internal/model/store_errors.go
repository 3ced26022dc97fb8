// Package model はドメインモデルを定義する。
package model

import "fmt"

// ConstraintViolationError はストアの一意性制約違反を表す。
// 書き込み時にそのまま呼び出し側へ伝播され、ストア側で自動解決されることはない。
type ConstraintViolationError struct {
	Constraint string // 違反した制約名（例: tags_name_key）
	Err        error  // ドライバから返された元エラー
}

// Error はerrorインターフェースを実装する。
func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("一意性制約違反: %s: %v", e.Constraint, e.Err)
}

// Unwrap は元エラーを返す。
func (e *ConstraintViolationError) Unwrap() error {
	return e.Err
}

// DanglingReferenceError はソフト外部キーの参照先が存在しないことを表す。
// ストアは参照整合性を検証しないため、このエラーはストアからは発生せず、
// 読み取り時にアプリケーション層が検出した孤児行を示すために使用する。
type DanglingReferenceError struct {
	Table  string // 参照先テーブル
	Column string // 参照元カラム
	ID     string // 解決できなかった識別子
}

// Error はerrorインターフェースを実装する。
func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("孤児参照を検出: %s.%s -> %s（参照先の行が存在しません）", e.Table, e.Column, e.ID)
}

package database

import "fmt"

// AlreadyExistsError は空でないストアに対して初期スキーマを作成しようとしたことを表す。
// 冪等な作成はマイグレーションのバージョン管理で担保する責務であり、
// ストア自体は二重作成を許容しない。
type AlreadyExistsError struct {
	Version uint   // 失敗したマイグレーションのバージョン
	Object  string // 既に存在していたスキーマオブジェクト
}

// Error はerrorインターフェースを実装する。
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("スキーマは既に存在します（version %d, object %q）: マイグレーション履歴のないストアに対する再作成はできません", e.Version, e.Object)
}

// MigrationConflictError はマイグレーションの対象オブジェクトが既に存在すること
// （二重適用）を表す。
type MigrationConflictError struct {
	Version uint   // 競合したマイグレーションのバージョン
	Object  string // 既に存在していたスキーマオブジェクト
}

// Error はerrorインターフェースを実装する。
func (e *MigrationConflictError) Error() string {
	return fmt.Sprintf("マイグレーション %d の対象オブジェクト %q は既に存在します（二重適用）", e.Version, e.Object)
}

// MigrationGapError はマイグレーションが先行バージョン未適用のまま
// 適用されようとしたこと（順序違反）を表す。
type MigrationGapError struct {
	Version uint // 適用しようとしたバージョン
	Missing uint // 未適用の先行バージョン
}

// Error はerrorインターフェースを実装する。
func (e *MigrationGapError) Error() string {
	return fmt.Sprintf("マイグレーション %d は先行バージョン %d が未適用のため適用できません（順序違反）", e.Version, e.Missing)
}

// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: guest, validation, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeItemDeleted        = "ITEM_DELETED"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeParentNotFound     = "PARENT_NOT_FOUND"
	ErrCodeParentMismatch     = "PARENT_MISMATCH"
	ErrCodeSelfParent         = "SELF_PARENT"
	ErrCodeTagNotFound        = "TAG_NOT_FOUND"
	ErrCodeDuplicateTagName   = "DUPLICATE_TAG_NAME"
	ErrCodeGuestNotFound      = "GUEST_NOT_FOUND"
	ErrCodeInvalidDisplayName = "INVALID_DISPLAY_NAME"
	ErrCodeInvalidDocument    = "INVALID_DOCUMENT"
	ErrCodeInvalidCursor      = "INVALID_CURSOR"
	ErrCodeInvalidTitle       = "INVALID_TITLE"
	ErrCodeInvalidTagName     = "INVALID_TAG_NAME"
	ErrCodeInvalidURL         = "INVALID_URL"
)

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", itemID),
		Category: "content",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewItemDeletedError は削除済みアイテムへの操作エラーを生成する。
func NewItemDeletedError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemDeleted,
		Message:  fmt.Sprintf("指定されたアイテムは削除されています: %s", itemID),
		Category: "content",
		Action:   "削除済みアイテムにはコメント・タグ付けできません。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "content",
		Action:   "コメントIDを確認してください。",
	}
}

// NewParentNotFoundError は親コメント未検出エラーを生成する。
func NewParentNotFoundError(parentID string) *APIError {
	return &APIError{
		Code:     ErrCodeParentNotFound,
		Message:  fmt.Sprintf("指定された親コメントが見つかりません: %s", parentID),
		Category: "validation",
		Action:   "返信先のコメントIDを確認してください。",
	}
}

// NewParentMismatchError は親コメントが別アイテムに属する場合のエラーを生成する。
func NewParentMismatchError(parentID, itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeParentMismatch,
		Message:  fmt.Sprintf("親コメント %s はアイテム %s に属していません。", parentID, itemID),
		Category: "validation",
		Action:   "同一アイテム上のコメントにのみ返信できます。",
	}
}

// NewSelfParentError は自身を親に指定した場合のエラーを生成する。
func NewSelfParentError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfParent,
		Message:  "コメントは自身を親として参照できません。",
		Category: "validation",
		Action:   "返信先のコメントIDを確認してください。",
	}
}

// NewTagNotFoundError はタグ未検出エラーを生成する。
func NewTagNotFoundError(tagID string) *APIError {
	return &APIError{
		Code:     ErrCodeTagNotFound,
		Message:  fmt.Sprintf("指定されたタグが見つかりません: %s", tagID),
		Category: "content",
		Action:   "タグIDを確認してください。",
	}
}

// NewDuplicateTagNameError はタグ名重複エラーを生成する。
// ストアの一意性制約違反（ConstraintViolation）をそのままユーザーに伝える。
func NewDuplicateTagNameError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTagName,
		Message:  fmt.Sprintf("同名のタグが既に存在します: %s", name),
		Category: "validation",
		Action:   "別のタグ名を指定するか、既存タグを使用してください。",
	}
}

// NewGuestNotFoundError はゲストセッション未検出エラーを生成する。
func NewGuestNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeGuestNotFound,
		Message:  "ゲストセッションが見つかりません。",
		Category: "guest",
		Action:   "セッションを作成し直してください。",
	}
}

// NewInvalidDisplayNameError は無効な表示名エラーを生成する。
func NewInvalidDisplayNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDisplayName,
		Message:  fmt.Sprintf("無効な表示名です: %s", reason),
		Category: "validation",
		Action:   "表示名は1〜32文字で指定してください。",
	}
}

// NewInvalidDocumentError は無効なリッチテキストドキュメントエラーを生成する。
func NewInvalidDocumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDocument,
		Message:  fmt.Sprintf("無効なリッチテキストドキュメントです: %s", reason),
		Category: "validation",
		Action:   "ドキュメントの形式を確認してください。",
	}
}

// NewInvalidCursorError は無効なページネーションカーソルエラーを生成する。
func NewInvalidCursorError(cursor string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソル値です: %s", cursor),
		Category: "validation",
		Action:   "前回のレスポンスのnext_cursorをそのまま指定してください。",
	}
}

// NewInvalidTitleError は無効なタイトルエラーを生成する。
func NewInvalidTitleError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTitle,
		Message:  fmt.Sprintf("無効なタイトルです: %s", reason),
		Category: "validation",
		Action:   "タイトルは1〜200文字で指定してください。",
	}
}

// NewInvalidTagNameError は無効なタグ名エラーを生成する。
func NewInvalidTagNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTagName,
		Message:  fmt.Sprintf("無効なタグ名です: %s", reason),
		Category: "validation",
		Action:   "タグ名は1〜50文字で指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

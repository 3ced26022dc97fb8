// Package guest はゲストセッション管理のドメインロジックを提供する。
package guest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/repository"
)

// 表示名の最大文字数（コードポイント数）。
const maxDisplayNameLength = 32

// Service はゲストセッション管理のサービス層。
// セッションはCookieで持ち回るゲストIDに紐づき、認証を伴わない。
type Service struct {
	guestRepo repository.GuestSessionRepository
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(guestRepo repository.GuestSessionRepository) *Service {
	return &Service{
		guestRepo: guestRepo,
		now:       time.Now,
	}
}

// CreateSession は新しいゲストセッションを作成する。
// guest_idはサーバー側で生成し、以後変更されない。
func (s *Service) CreateSession(ctx context.Context, displayName string) (*model.GuestSession, error) {
	name, err := validateDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	session := &model.GuestSession{
		GuestID:     uuid.NewString(),
		DisplayName: name,
		CreatedAt:   s.now(),
	}

	if err := s.guestRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("ゲストセッションの作成に失敗しました: %w", err)
	}

	slog.Info("ゲストセッションを作成しました",
		slog.String("guest_id", session.GuestID),
	)

	return session, nil
}

// GetSession は指定guest_idのセッションを取得する。
// セッションが存在しない（TTLスイープで削除済みを含む）場合はGUEST_NOT_FOUNDを返す。
func (s *Service) GetSession(ctx context.Context, guestID string) (*model.GuestSession, error) {
	if guestID == "" {
		return nil, model.NewGuestNotFoundError()
	}

	session, err := s.guestRepo.FindByGuestID(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("ゲストセッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewGuestNotFoundError()
	}

	return session, nil
}

// validateDisplayName は表示名を検証し、前後の空白を除去した値を返す。
func validateDisplayName(displayName string) (string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", model.NewInvalidDisplayNameError("表示名が入力されていません")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return "", model.NewInvalidDisplayNameError(
			fmt.Sprintf("表示名は%d文字以内で入力してください", maxDisplayNameLength))
	}
	return name, nil
}

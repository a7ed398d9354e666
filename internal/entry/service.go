// Package entry は日記（moment）の作成・参照・更新・削除を提供する。
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/joysparks/internal/model"
	"github.com/hitoshi/joysparks/internal/repository"
	"github.com/hitoshi/joysparks/internal/security"
)

const (
	// MaxContentLength は本文の最大文字数。
	MaxContentLength = 280
	// MaxCategoryLength はカテゴリの最大文字数。
	MaxCategoryLength = 50

	defaultPageSize = 10
	maxPageSize     = 100
)

// Config はページングの設定。ゼロ値はデフォルト値で補完する。
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// CreateInput は日記作成の入力。
type CreateInput struct {
	Content  string
	Category string
}

// ListInput は日記一覧の入力。Limitが0の場合はデフォルト値を使う。
type ListInput struct {
	Limit    int
	Offset   int
	Category string
}

// Service は日記のビジネスロジックを提供する。
// すべての操作は所有者IDで絞り込まれ、他ユーザーの日記は存在しないものとして扱う。
type Service struct {
	entries   repository.EntryRepository
	sanitizer security.ContentSanitizerService
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(entries repository.EntryRepository, sanitizer security.ContentSanitizerService, config Config) *Service {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaultPageSize
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = maxPageSize
	}
	if config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = config.MaxLimit
	}
	return &Service{
		entries:   entries,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
	}
}

// Create は日記を作成する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Entry, error) {
	content, err := s.cleanContent(input.Content)
	if err != nil {
		return nil, err
	}
	category, err := s.cleanCategory(input.Category)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &model.Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	slog.Info("entry created", slog.String("user_id", userID), slog.String("entry_id", entry.ID))
	return entry, nil
}

// List はユーザーの日記を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string, input ListInput) ([]*model.Entry, error) {
	limit := input.Limit
	switch {
	case limit < 0:
		return nil, model.NewInvalidPaginationError("limitが負の値です")
	case limit == 0:
		limit = s.config.DefaultLimit
	case limit > s.config.MaxLimit:
		limit = s.config.MaxLimit
	}
	if input.Offset < 0 {
		return nil, model.NewInvalidPaginationError("offsetが負の値です")
	}

	filter := model.EntryFilter{Category: strings.TrimSpace(input.Category)}
	entries, err := s.entries.ListByUser(ctx, userID, filter, limit, input.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	if entries == nil {
		entries = []*model.Entry{}
	}
	return entries, nil
}

// Get は指定IDの日記を返す。
func (s *Service) Get(ctx context.Context, userID, entryID string) (*model.Entry, error) {
	if !isEntryID(entryID) {
		return nil, model.NewEntryNotFoundError(entryID)
	}

	entry, err := s.entries.FindByIDAndUser(ctx, entryID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find entry: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	return entry, nil
}

// Update は日記を部分更新する。patchのnilフィールドは変更しない。
// カテゴリに空文字列を指定した場合はカテゴリを外す。
func (s *Service) Update(ctx context.Context, userID, entryID string, patch model.EntryPatch) (*model.Entry, error) {
	if !isEntryID(entryID) {
		return nil, model.NewEntryNotFoundError(entryID)
	}

	var clean model.EntryPatch
	if patch.Content != nil {
		content, err := s.cleanContent(*patch.Content)
		if err != nil {
			return nil, err
		}
		clean.Content = &content
	}
	if patch.Category != nil {
		category, err := s.cleanCategory(*patch.Category)
		if err != nil {
			return nil, err
		}
		clean.Category = &category
	}

	entry, err := s.entries.UpdateByIDAndUser(ctx, entryID, userID, clean, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	return entry, nil
}

// Delete は日記を削除する。
func (s *Service) Delete(ctx context.Context, userID, entryID string) error {
	if !isEntryID(entryID) {
		return model.NewEntryNotFoundError(entryID)
	}

	deleted, err := s.entries.DeleteByIDAndUser(ctx, entryID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if !deleted {
		return model.NewEntryNotFoundError(entryID)
	}

	slog.Info("entry deleted", slog.String("user_id", userID), slog.String("entry_id", entryID))
	return nil
}

// cleanContent は本文をサニタイズし、長さを検証する。
func (s *Service) cleanContent(raw string) (string, error) {
	content := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if content == "" {
		return "", model.NewInvalidEntryError("本文は必須です")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", model.NewInvalidEntryError(fmt.Sprintf("本文は%d文字以内です", MaxContentLength))
	}
	return content, nil
}

// cleanCategory はカテゴリをサニタイズし、長さを検証する。空文字列は未分類を表す。
func (s *Service) cleanCategory(raw string) (string, error) {
	category := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return "", model.NewInvalidEntryError(fmt.Sprintf("カテゴリは%d文字以内です", MaxCategoryLength))
	}
	return category, nil
}

// isEntryID は日記IDとして有効なUUIDかを判定する。
func isEntryID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

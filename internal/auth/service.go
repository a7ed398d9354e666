// Package auth はローカル認証、外部IdPによるサインインとアカウント紐付け、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/joysparks/internal/metrics"
	"github.com/hitoshi/joysparks/internal/model"
	"github.com/hitoshi/joysparks/internal/repository"
)

const (
	maxUsernameLength = 255
	maxPasswordLength = 1024
	maxNameLength     = 100
)

// OAuthProvider はOAuth認可コードフローのプロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、外部IdPクレームを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.FederatedClaim, error)
}

// PasswordHasher はパスワードのハッシュ化と検証のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(candidate, stored string) bool
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// ServiceDeps は認証サービスの依存。OAuth、TokenVerifier、Metricsはnilでもよい。
type ServiceDeps struct {
	Accounts repository.AccountRepository
	Sessions repository.SessionRepository
	Hasher   PasswordHasher
	Resolver *Resolver
	OAuth    OAuthProvider
	Verifier TokenVerifier
	Metrics  metrics.MetricsCollector
}

// RegisterInput はパスワード登録の入力。
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	hasher   PasswordHasher
	resolver *Resolver
	oauth    OAuthProvider
	verifier TokenVerifier
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	collector := deps.Metrics
	if collector == nil {
		collector = (*metrics.Collector)(nil)
	}
	return &Service{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		resolver: deps.Resolver,
		oauth:    deps.OAuth,
		verifier: deps.Verifier,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// OAuthEnabled は認可コードフローが構成されているかを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// Register はパスワードアカウントを作成し、セッションを発行する。
// ユーザー名が使用済みの場合はUSERNAME_TAKENを返す。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.Account, *model.Session, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validateRegisterInput(input); err != nil {
		return nil, nil, err
	}

	existing, err := s.accounts.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewUsernameTakenError()
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := &model.Account{
		ID:          uuid.New().String(),
		Username:    input.Username,
		Credentials: model.PasswordCredentials(hash),
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, model.NewUsernameTakenError()
		}
		return nil, nil, fmt.Errorf("failed to create account: %w", err)
	}
	s.metrics.RecordRegistration()

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("account registered", slog.String("user_id", account.ID))
	return account, session, nil
}

// Login はユーザー名とパスワードで認証し、セッションを発行する。
// 失敗理由にかかわらず同じAUTHENTICATION_FAILEDを返す。
// 未登録ユーザーやパスワード未設定のアカウントでもダミーハッシュで検証を行い、所要時間を揃える。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Account, *model.Session, error) {
	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account: %w", err)
	}

	var (
		stored      string
		hasPassword bool
	)
	if account != nil {
		stored, hasPassword = account.Credentials.PasswordHash()
	}
	if !hasPassword {
		stored = s.dummyPasswordHash()
	}

	start := time.Now()
	matched := s.hasher.Verify(password, stored)
	s.metrics.RecordVerifyLatency(time.Since(start))

	if !hasPassword || !matched {
		s.metrics.RecordLoginAttempt(metrics.LoginFailed)
		return nil, nil, model.NewAuthenticationFailedError()
	}
	s.metrics.RecordLoginAttempt(metrics.LoginSucceeded)

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", account.ID), slog.String("method", "password"))
	return account, session, nil
}

// SignInWithIDToken は外部IdPのIDトークンを検証してアカウントを解決し、セッションを発行する。
// トークン検証の失敗は解決エラーではなくAUTHENTICATION_FAILEDとして扱う。
func (s *Service) SignInWithIDToken(ctx context.Context, idToken string) (*model.Account, *model.Session, error) {
	if s.verifier == nil {
		return nil, nil, model.NewAuthenticationFailedError()
	}

	claim, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		slog.Warn("id token verification failed", slog.String("error", err.Error()))
		return nil, nil, model.NewAuthenticationFailedError()
	}

	return s.signInWithClaim(ctx, *claim, "id_token")
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、アカウントを解決してセッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.oauth == nil {
		return nil, model.NewAuthenticationFailedError()
	}

	claim, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.String("error", err.Error()))
		return nil, model.NewAuthenticationFailedError()
	}

	_, session, err := s.signInWithClaim(ctx, *claim, "oauth_code")
	if err != nil {
		return nil, err
	}
	return session, nil
}

// signInWithClaim は検証済みクレームからアカウントを解決してセッションを発行する。
func (s *Service) signInWithClaim(ctx context.Context, claim model.FederatedClaim, method string) (*model.Account, *model.Session, error) {
	account, err := s.resolver.Resolve(ctx, claim)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", account.ID), slog.String("method", method))
	return account, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効な場合はUNAUTHORIZEDを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	account, err := s.accounts.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUnauthorizedError()
	}

	return account, nil
}

// LogoutAll はセッションの所有者の全セッションを削除する。
// セッションが存在しない、または期限切れの場合は何もしない。
func (s *Service) LogoutAll(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil
	}

	if err := s.sessions.DeleteByUserID(ctx, session.UserID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("user logged out from all sessions", slog.String("user_id", session.UserID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// dummyPasswordHash は存在しないアカウントの検証に使うハッシュを返す。初回のみ計算する。
// 生成に失敗した場合は空文字列となり、Verifyは形式不正として同じ失敗経路をたどる。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.New().String())
		if err != nil {
			slog.Error("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// validateRegisterInput は登録入力を検証する。
func validateRegisterInput(input RegisterInput) error {
	switch {
	case input.Username == "":
		return model.NewInvalidRequestError("ユーザー名は必須です")
	case len(input.Username) > maxUsernameLength:
		return model.NewInvalidRequestError("ユーザー名が長すぎます")
	case input.Password == "":
		return model.NewInvalidRequestError("パスワードは必須です")
	case len(input.Password) > maxPasswordLength:
		return model.NewInvalidRequestError("パスワードが長すぎます")
	case len([]rune(input.FirstName)) > maxNameLength || len([]rune(input.LastName)) > maxNameLength:
		return model.NewInvalidRequestError("氏名が長すぎます")
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

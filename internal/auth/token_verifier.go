package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/joysparks/internal/model"
)

const (
	defaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v1/certs"
	defaultCertsCacheTTL  = time.Hour
	tokenLeeway           = 30 * time.Second

	// 未知のkidによる証明書の再取得はこの間隔に1回まで
	forcedRefreshInterval = time.Minute
)

// defaultGoogleIssuers はGoogleのIDトークンが使用するiss値。
var defaultGoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// ErrInvalidToken はIDトークンの署名・発行者・宛先・有効期限のいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("invalid id token")

// TokenVerifier は外部IdPのIDトークンを検証し、クレームを取り出すインターフェース。
type TokenVerifier interface {
	// Verify はトークンを検証してクレームを返す。検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
	Verify(ctx context.Context, rawToken string) (*model.FederatedClaim, error)
}

// GoogleIDTokenVerifierConfig はGoogle IDトークン検証の設定。
type GoogleIDTokenVerifierConfig struct {
	ClientID string
	Issuers  []string

	// テスト用にオーバーライド可能
	CertsURL   string
	HTTPClient *http.Client
}

// googleIDClaims はGoogle IDトークンのペイロード。
type googleIDClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// GoogleIDTokenVerifier はGoogleが公開する証明書でRS256のIDトークンを検証する。
// 証明書はCache-Controlのmax-ageに従ってキャッシュする。
type GoogleIDTokenVerifier struct {
	config GoogleIDTokenVerifierConfig
	now    func() time.Time

	// fetchMu は証明書の取得を直列化する。muは取得中も保持しない。
	fetchMu sync.Mutex

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	expiresAt   time.Time
	lastFetchAt time.Time
}

// NewGoogleIDTokenVerifier はGoogleIDTokenVerifierを生成する。
func NewGoogleIDTokenVerifier(config GoogleIDTokenVerifierConfig) *GoogleIDTokenVerifier {
	if config.CertsURL == "" {
		config.CertsURL = defaultGoogleCertsURL
	}
	if len(config.Issuers) == 0 {
		config.Issuers = defaultGoogleIssuers
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleIDTokenVerifier{config: config, now: time.Now}
}

// Verify はIDトークンを検証してクレームを返す。
func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, rawToken string) (*model.FederatedClaim, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("empty token: %w", ErrInvalidToken)
	}

	claims := &googleIDClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims,
		func(token *jwt.Token) (any, error) {
			kid, _ := token.Header["kid"].(string)
			return v.publicKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.config.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !slices.Contains(v.config.Issuers, claims.Issuer) {
		return nil, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub: %w", ErrInvalidToken)
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, fmt.Errorf("email not verified: %w", ErrInvalidToken)
	}

	return &model.FederatedClaim{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// publicKey はkidに対応する公開鍵を返す。
// キャッシュが期限切れの場合は証明書を取得し直す。キャッシュが有効なまま未知のkidが来た場合は、
// 鍵のローテーションに備えて forcedRefreshInterval に1回だけ再取得する。
func (v *GoogleIDTokenVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, done, err := v.cachedKey(kid); done {
		return key, err
	}

	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	// 待っている間に別のリクエストが取得済みの場合がある
	if key, done, err := v.cachedKey(kid); done {
		return key, err
	}

	keys, ttl, err := v.fetchCerts(ctx)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	now := v.now()
	v.keys = keys
	v.expiresAt = now.Add(ttl)
	v.lastFetchAt = now
	v.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q: %w", kid, ErrInvalidToken)
	}
	return key, nil
}

// cachedKey はキャッシュだけでkidを解決する。doneがfalseなら証明書の取得が必要。
func (v *GoogleIDTokenVerifier) cachedKey(kid string) (key *rsa.PublicKey, done bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if v.keys == nil || !now.Before(v.expiresAt) {
		return nil, false, nil
	}
	if key, ok := v.keys[kid]; ok {
		return key, true, nil
	}
	if now.Sub(v.lastFetchAt) < forcedRefreshInterval {
		return nil, true, fmt.Errorf("unknown key id %q: %w", kid, ErrInvalidToken)
	}
	return nil, false, nil
}

// fetchCerts はGoogleの証明書エンドポイントからkid→公開鍵の対応を取得する。
func (v *GoogleIDTokenVerifier) fetchCerts(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.CertsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read certs response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("certs fetch failed with status %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.Unmarshal(body, &pems); err != nil {
		return nil, 0, fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse certificate %q: %w", kid, err)
		}
		keys[kid] = key
	}

	return keys, cacheMaxAge(resp.Header.Get("Cache-Control")), nil
}

// cacheMaxAge はCache-Controlヘッダーのmax-ageを返す。指定がない場合は既定値を返す。
func cacheMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultCertsCacheTTL
}

// compile-time interface check
var _ TokenVerifier = (*GoogleIDTokenVerifier)(nil)

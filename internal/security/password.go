package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// passwordKeyLen はscryptで導出する鍵の長さ（バイト）。
	passwordKeyLen = 64
	// passwordSaltLen はハッシュごとに生成するソルトの長さ（バイト）。
	passwordSaltLen = 16
	// hashSeparator は導出鍵とソルトの区切り文字。どちらもhex表現のため出現しない。
	hashSeparator = "."
)

// dummySalt は保存済みハッシュが壊れている場合の鍵導出に使うソルト。
var dummySalt = strings.Repeat("0", passwordSaltLen*2)

// ScryptParams はscryptのコストパラメータ。
type ScryptParams struct {
	N int
	R int
	P int
}

// DefaultScryptParams は既存ハッシュと互換性のあるデフォルトパラメータを返す。
// N=16384, r=8, p=1。
func DefaultScryptParams() ScryptParams {
	return ScryptParams{N: 16384, R: 8, P: 1}
}

// PasswordHasher はscryptによるパスワードハッシュの生成と検証を提供する。
//
// 保存形式は hex(導出鍵) + "." + hex(ソルト)。
// ソルトはhex文字列のままscryptへ入力するため、既存データのハッシュもそのまま検証できる。
// 平文パスワードと導出鍵はどのログレベルにも出力しない。
type PasswordHasher struct {
	params ScryptParams
	random io.Reader
}

// NewPasswordHasher はPasswordHasherを生成する。
// ゼロ値のパラメータはデフォルト値で補完する。
func NewPasswordHasher(params ScryptParams) *PasswordHasher {
	def := DefaultScryptParams()
	if params.N <= 1 {
		params.N = def.N
	}
	if params.R <= 0 {
		params.R = def.R
	}
	if params.P <= 0 {
		params.P = def.P
	}
	return &PasswordHasher{params: params, random: rand.Reader}
}

// Hash は新しいランダムソルトでパスワードのハッシュを生成する。
// 同じパスワードでも呼び出しごとに異なる結果を返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, passwordSaltLen)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	key, err := h.derive(password, saltHex)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	return hex.EncodeToString(key) + hashSeparator + saltHex, nil
}

// Verify は候補パスワードが保存済みハッシュと一致するかを検証する。
// 保存済みハッシュが空、区切り文字なし、hexとして不正な場合はfalseを返す。
// 比較は定数時間で行い、形式不正の場合も鍵導出を実行して処理時間を揃える。
func (h *PasswordHasher) Verify(candidate, stored string) bool {
	keyHex, saltHex, ok := strings.Cut(stored, hashSeparator)
	if !ok || keyHex == "" || !isHexString(saltHex) {
		_, _ = h.derive(candidate, dummySalt)
		return false
	}

	storedKey, err := hex.DecodeString(keyHex)
	if err != nil {
		_, _ = h.derive(candidate, dummySalt)
		return false
	}

	derived, err := h.derive(candidate, saltHex)
	if err != nil {
		return false
	}

	if len(storedKey) != len(derived) {
		subtle.ConstantTimeCompare(storedKey, make([]byte, len(storedKey)))
		return false
	}

	return subtle.ConstantTimeCompare(storedKey, derived) == 1
}

// derive はパスワードとソルト文字列から鍵を導出する。
func (h *PasswordHasher) derive(password, salt string) ([]byte, error) {
	return scrypt.Key([]byte(password), []byte(salt), h.params.N, h.params.R, h.params.P, passwordKeyLen)
}

// isHexString は空でない偶数長のhex文字列かどうかを判定する。
func isHexString(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

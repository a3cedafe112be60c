package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// saltBytes はソルトの長さ（バイト）。16バイトを32文字のhexとして保存する。
const saltBytes = 16

// GenerateSalt は暗号学的乱数から新しいソルトを生成する。
func GenerateSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword はSHA-256(password ‖ salt)のhexダイジェストを返す。
func HashPassword(password, salt string) string {
	h := sha256.New()
	h.Write([]byte(password))
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPassword は平文パスワードが保存済みハッシュと一致するかを検証する。
// 比較は一定時間で行う。
func VerifyPassword(password, salt, storedHash string) bool {
	computed := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

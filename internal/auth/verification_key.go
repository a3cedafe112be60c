package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// verificationKeyLen は検証キーの文字数。
const verificationKeyLen = 6

// keyCharset は検証キーに使用する文字集合（英大文字と数字）。
const keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateVerificationKey は6文字の検証キーを生成する。
// 英大文字と数字から抽選し、少なくとも英字1文字と数字1文字を含むよう
// 末尾の文字を補正する。キーは登録時に一度だけ発行され、ローテーションされない。
func GenerateVerificationKey() (string, error) {
	b := make([]byte, verificationKeyLen)
	max := big.NewInt(int64(len(keyCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate verification key: %w", err)
		}
		b[i] = keyCharset[n.Int64()]
	}
	key := string(b)

	// 少なくとも英字1文字・数字1文字を含むよう末尾を差し替える
	if !strings.ContainsAny(key, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		key = key[:verificationKeyLen-1] + "A"
	}
	if !strings.ContainsAny(key, "0123456789") {
		key = key[:verificationKeyLen-1] + "1"
	}

	return key, nil
}

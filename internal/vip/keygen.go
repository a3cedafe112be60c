package vip

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeCharset はカードキーコードに使用する文字集合（英大文字と数字）。
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	codeGroupLen   = 4
	codeGroupCount = 4
)

// GenerateCode は VIP-XXXX-XXXX-XXXX-XXXX 形式のカードキーコードを生成する。
// 乱数は暗号論的に安全な生成器から取得する。一意性はここでは保証せず、
// ストアの一意インデックスと発行側の再試行で担保する。
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeCharset)))
	groups := make([]string, 0, codeGroupCount+1)
	groups = append(groups, "VIP")

	for i := 0; i < codeGroupCount; i++ {
		b := make([]byte, codeGroupLen)
		for j := range b {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("failed to generate card key code: %w", err)
			}
			b[j] = codeCharset[n.Int64()]
		}
		groups = append(groups, string(b))
	}

	return strings.Join(groups, "-"), nil
}

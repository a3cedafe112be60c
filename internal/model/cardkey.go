package model

import "time"

// KeyStatus はカードキーの状態を表す。
type KeyStatus string

const (
	// KeyStatusUnredeemed は未使用のカードキーを示す。
	KeyStatusUnredeemed KeyStatus = "unredeemed"
	// KeyStatusRedeemed は有効化済みのカードキーを示す。
	// unredeemed→redeemed の遷移は1回だけ起こる。
	KeyStatusRedeemed KeyStatus = "redeemed"
	// KeyStatusConsumed は予約済みの状態。現行フローでは使用しない。
	KeyStatusConsumed KeyStatus = "consumed"
	// KeyStatusFrozen は管理者が運用外で凍結した状態。
	KeyStatusFrozen KeyStatus = "frozen"
)

// CardKey はVIPカードキー（会員権を付与する1回限りのコード）を表す。
// Codeは発行時点でグローバルに一意であり、以後変更されない。
// 形式: VIP-XXXX-XXXX-XXXX-XXXX（英大文字と数字）。
type CardKey struct {
	ID                 string
	Code               string
	Tier               int
	Days               int
	LyricsLimit        int
	MusicLimit         int
	Status             KeyStatus
	RedeemedBy         string
	RedeemedHardwareID string
	RedeemedAt         *time.Time
	ExpireTime         *time.Time
	CreatedAt          time.Time
}

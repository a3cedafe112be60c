// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// HardwareIDは初回ログインまでnull（空文字）で、AuthServiceのみが更新する。
// VerificationKeyは登録時に一度だけ発行され、以後ローテーションされない。
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Salt            string
	VerificationKey string
	HardwareID      string
	CreatedAt       time.Time
	LastLogin       *time.Time
}

// UsageType は計測対象のアクション種別を表す。
type UsageType string

const (
	// UsageLyrics は歌詞生成の利用を示す。
	UsageLyrics UsageType = "lyrics"
	// UsageMusic は音楽生成の利用を示す。
	UsageMusic UsageType = "music"
)

// Valid はサポートされている利用種別かどうかを返す。
func (u UsageType) Valid() bool {
	return u == UsageLyrics || u == UsageMusic
}

// UsageEvent は利用実績の追記専用監査レコードを表す。
// 一度書き込まれたレコードは更新・削除されない。
type UsageEvent struct {
	ID         string
	UserID     string
	Email      string
	ActionType UsageType
	ActionTime time.Time
}

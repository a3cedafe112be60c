package model

import "time"

// Membership はユーザーに紐づく有効期限付きの会員権を表す。
// 有効な行は expire_time > now を満たす行で、1ユーザーにつき高々1行。
// 期限切れの行は削除されず、次の有効化で新しい行に置き換わる。
type Membership struct {
	ID               string
	UserID           string
	Email            string
	Tier             int
	LyricsLimit      int
	LyricsUsed       int
	MusicLimit       int
	MusicUsed        int
	ActivatedAt      time.Time
	ExpireTime       time.Time
	LastCheck        *time.Time
	LastUsed         *time.Time
	LastActivatedKey string
}

// LyricsRemaining は歌詞生成の残回数を返す。
func (m *Membership) LyricsRemaining() int {
	if r := m.LyricsLimit - m.LyricsUsed; r > 0 {
		return r
	}
	return 0
}

// MusicRemaining は音楽生成の残回数を返す。
func (m *Membership) MusicRemaining() int {
	if r := m.MusicLimit - m.MusicUsed; r > 0 {
		return r
	}
	return 0
}

// RemainingDays は有効期限までの残日数を返す。
// 期限内なら最低1日として切り上げ、期限切れなら0を返す。
func (m *Membership) RemainingDays(now time.Time) int {
	if !m.ExpireTime.After(now) {
		return 0
	}
	d := m.ExpireTime.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// MergeRedemption はカードキーの有効化を既存の会員権へマージした結果を返す。
//
// 既存の有効な会員権がない場合（existing == nil）は新規会員権を作成する。
// 既存がある場合のマージ規則:
//   - 期限は max(旧期限, now) に key.Days を加算する。旧期限が過去でも
//     now を起点にするため、期限は単調に延びる。
//   - 上限は「旧残回数 + 新カードの付与回数」。使用済みカウンタは0に戻す
//     （残回数ベースの上限と整合させるため）。
//   - 等級は旧等級とカードの等級の高い方を採用する。
//
// 返り値のID・UserID・Emailは existing があればそれを引き継ぎ、なければ空の
// まま呼び出し側が設定する。
func MergeRedemption(existing *Membership, key *CardKey, now time.Time) Membership {
	if existing == nil {
		return Membership{
			Tier:             key.Tier,
			LyricsLimit:      key.LyricsLimit,
			MusicLimit:       key.MusicLimit,
			LyricsUsed:       0,
			MusicUsed:        0,
			ActivatedAt:      now,
			ExpireTime:       now.AddDate(0, 0, key.Days),
			LastActivatedKey: key.Code,
		}
	}

	base := existing.ExpireTime
	if !base.After(now) {
		base = now
	}

	tier := existing.Tier
	if key.Tier > tier {
		tier = key.Tier
	}

	return Membership{
		ID:               existing.ID,
		UserID:           existing.UserID,
		Email:            existing.Email,
		Tier:             tier,
		LyricsLimit:      existing.LyricsRemaining() + key.LyricsLimit,
		MusicLimit:       existing.MusicRemaining() + key.MusicLimit,
		LyricsUsed:       0,
		MusicUsed:        0,
		ActivatedAt:      existing.ActivatedAt,
		ExpireTime:       base.AddDate(0, 0, key.Days),
		LastActivatedKey: key.Code,
	}
}

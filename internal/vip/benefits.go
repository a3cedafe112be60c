// Package vip はカードキーの発行・有効化と利用回数の計測を提供する。
package vip

// TierBenefit は会員等級ごとの付与内容を表す。
type TierBenefit struct {
	Name        string // 等級の表示名
	Days        int    // 有効日数
	LyricsLimit int    // 歌詞生成の付与回数
	MusicLimit  int    // 音楽生成の付与回数
}

// tierBenefits は等級から付与内容への固定テーブル。
// 等級は1〜4のみ有効で、テーブル外の等級は発行時に拒否される。
var tierBenefits = map[int]TierBenefit{
	1: {Name: "体験会員", Days: 7, LyricsLimit: 50, MusicLimit: 10},
	2: {Name: "月額会員", Days: 30, LyricsLimit: 200, MusicLimit: 50},
	3: {Name: "四半期会員", Days: 90, LyricsLimit: 600, MusicLimit: 150},
	4: {Name: "年間会員", Days: 365, LyricsLimit: 2400, MusicLimit: 600},
}

// BenefitForTier は指定等級の付与内容を返す。
// 無効な等級の場合は ok=false を返す。
func BenefitForTier(tier int) (TierBenefit, bool) {
	b, ok := tierBenefits[tier]
	return b, ok
}

// TierName は等級の表示名を返す。未知の等級には空文字列を返す。
func TierName(tier int) string {
	return tierBenefits[tier].Name
}

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/vipgate/internal/model"
)

// ストレージ層の制約違反・条件不成立を示すセンチネルエラー。
// サービス層はerrors.Isで判別して業務エラーへ変換する。
var (
	// ErrDuplicateEmail はメールアドレスの一意制約違反を示す。
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateCode はカードキーコードの一意制約違反を示す。
	// 発行側はこのエラーを受けてコードを再生成する。
	ErrDuplicateCode = errors.New("card key code already exists")

	// ErrKeyNotRedeemable は条件付き更新でカードキーがunredeemedでなかったことを示す。
	// 同一コードへの並行有効化で敗者が受け取る。
	ErrKeyNotRedeemable = errors.New("card key is not redeemable")

	// ErrNoActiveMembership は有効期限内の会員権が存在しないことを示す。
	ErrNoActiveMembership = errors.New("no active membership")

	// ErrQuotaExhausted は利用回数が上限に達していることを示す。
	ErrQuotaExhausted = errors.New("usage quota exhausted")
)

// UserRepository はユーザー認証情報の永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが登録済みの場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// BindHardwareID はユーザーに紐づくデバイスIDを保存（上書き）する。
	BindHardwareID(ctx context.Context, userID, hardwareID string) error

	// UpdateLastLogin は最終ログイン時刻を更新する。
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int, error)
}

// CardKeyRepository はカードキーの永続化インターフェース。
type CardKeyRepository interface {
	// Insert はカードキーを1枚保存する。
	// コードが既に存在する場合はErrDuplicateCodeを返す（一意インデックスで原子的に拒否）。
	Insert(ctx context.Context, key *model.CardKey) error

	// FindByCode は指定コードのカードキーを取得する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.CardKey, error)

	// CountByStatus は状態ごとのカードキー枚数を返す。
	CountByStatus(ctx context.Context) (map[model.KeyStatus]int, error)
}

// MembershipRepository は会員権の永続化インターフェース。
// 有効化と利用計測は単一トランザクションで実行される。
type MembershipRepository interface {
	// FindActiveByUserID は有効期限内の会員権を取得する。見つからない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Membership, error)

	// Redeem はカードキーを会員権へマージし、キーをredeemedへ遷移させる。
	// 両方の書き込みは同一トランザクションでコミットされ、どちらかが失敗すれば
	// 全体がロールバックされる。キーが既にunredeemedでない場合は
	// ErrKeyNotRedeemableを返す。
	Redeem(ctx context.Context, user *model.User, key *model.CardKey, hardwareID string, now time.Time) (*model.Membership, error)

	// ConsumeQuota は指定種別の使用済みカウンタを1増やし、利用ログを追記する。
	// used < limit を条件とする単一のUPDATEで実行されるため、並行呼び出しでも
	// usedがlimitを超えることはない。有効会員権がなければErrNoActiveMembership、
	// 上限到達ならErrQuotaExhaustedを返す。成功時は残回数を返す。
	ConsumeQuota(ctx context.Context, userID, email string, usageType model.UsageType, now time.Time) (int, error)

	// TouchLastCheck は会員状態照会の最終時刻を記録する。
	TouchLastCheck(ctx context.Context, userID string, now time.Time) error

	// Count は会員権行の総数を返す（期限切れを含む）。
	Count(ctx context.Context) (int, error)
}

package vip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vipgate/internal/model"
	"github.com/hitoshi/vipgate/internal/repository"
)

// maxIssueQuantity は1回の発行リクエストで生成できるカードキーの上限枚数。
const maxIssueQuantity = 100

// MetricsRecorder はVIP操作のメトリクスを記録するインターフェース。
type MetricsRecorder interface {
	// RecordKeysIssued はカードキー発行枚数を記録する。
	RecordKeysIssued(tier, count int)
	// RecordActivation はカードキー有効化を記録する。
	RecordActivation(tier int)
	// RecordUsage は利用計測の成功を記録する。
	RecordUsage(usageType string)
	// RecordQuotaExhausted は上限到達による拒否を記録する。
	RecordQuotaExhausted(usageType string)
}

// ServiceConfig はVIPサービスの動作設定。
type ServiceConfig struct {
	// KeyRetryMax はコード衝突時に再生成を試みる上限回数。
	KeyRetryMax int
}

// Service はカードキーと会員権のビジネスロジックを提供する。
type Service struct {
	keyRepo    repository.CardKeyRepository
	userRepo   repository.UserRepository
	memberRepo repository.MembershipRepository
	metrics    MetricsRecorder
	config     ServiceConfig

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	keyRepo repository.CardKeyRepository,
	userRepo repository.UserRepository,
	memberRepo repository.MembershipRepository,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	if config.KeyRetryMax <= 0 {
		config.KeyRetryMax = 5
	}
	return &Service{
		keyRepo:    keyRepo,
		userRepo:   userRepo,
		memberRepo: memberRepo,
		metrics:    metrics,
		config:     config,
		now:        time.Now,
	}
}

// Issue は指定等級のカードキーをquantity枚発行する。
//
// コードの一意性はストアの一意インデックスで保証し、衝突した場合は
// KeyRetryMaxを上限にコードを再生成して再挿入する。上限まで衝突が続いた
// 場合のみ全体をエラーとする。部分的に挿入済みのキーはそのまま有効となる。
func (s *Service) Issue(ctx context.Context, tier, quantity int) ([]*model.CardKey, error) {
	benefit, ok := BenefitForTier(tier)
	if !ok {
		return nil, model.NewInvalidTierError(tier)
	}
	if quantity < 1 || quantity > maxIssueQuantity {
		return nil, model.NewInvalidQuantityError(quantity)
	}

	now := s.now()
	keys := make([]*model.CardKey, 0, quantity)

	for i := 0; i < quantity; i++ {
		key, err := s.issueOne(ctx, tier, benefit, now)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	slog.Info("card keys issued",
		slog.Int("tier", tier),
		slog.Int("quantity", len(keys)),
	)
	s.metrics.RecordKeysIssued(tier, len(keys))

	return keys, nil
}

// issueOne は1枚のカードキーを衝突再試行付きで挿入する。
func (s *Service) issueOne(ctx context.Context, tier int, benefit TierBenefit, now time.Time) (*model.CardKey, error) {
	for attempt := 0; attempt < s.config.KeyRetryMax; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, s.systemError("issue", err)
		}

		key := &model.CardKey{
			ID:          uuid.New().String(),
			Code:        code,
			Tier:        tier,
			Days:        benefit.Days,
			LyricsLimit: benefit.LyricsLimit,
			MusicLimit:  benefit.MusicLimit,
			Status:      model.KeyStatusUnredeemed,
			CreatedAt:   now,
		}

		err = s.keyRepo.Insert(ctx, key)
		if err == nil {
			return key, nil
		}
		if errors.Is(err, repository.ErrDuplicateCode) {
			slog.Warn("card key code collision, regenerating",
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, s.systemError("issue", err)
	}

	return nil, model.NewSystemError(
		fmt.Sprintf("カードキーコードの生成が%d回連続で衝突しました", s.config.KeyRetryMax))
}

// ActivationResult はカードキー有効化の結果を表す。
type ActivationResult struct {
	Email       string
	Tier        int
	TierName    string
	ExpireTime  time.Time
	DaysAdded   int
	LyricsAdded int
	MusicAdded  int
}

// Activate はカードキーを有効化し、ユーザーの会員権へマージする。
//
// 事前チェックで見つけた使用済み・凍結などの状態はそのまま業務エラーとして
// 返す。チェックを通過しても、実際の遷移は条件付きUPDATEで原子的に行われる
// ため、同一コードへの並行有効化ではちょうど1つだけが成功する。敗者は
// 最新状態を読み直して適切なエラーに変換する。
func (s *Service) Activate(ctx context.Context, code, email, hardwareID string) (*ActivationResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || email == "" {
		return nil, model.NewInvalidRequestError("カードキーとメールアドレスは必須です")
	}

	// キーの存在と状態をユーザーより先に解決する。使用済みキーに未登録の
	// メールアドレスを添えた場合も、報告すべきはキー側の競合である。
	key, err := s.keyRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, s.systemError("activate", err)
	}
	if key == nil {
		return nil, model.NewKeyNotFoundError()
	}
	if apiErr := keyStatusError(key); apiErr != nil {
		return nil, apiErr
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.systemError("activate", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.now()
	member, err := s.memberRepo.Redeem(ctx, user, key, hardwareID, now)
	if errors.Is(err, repository.ErrKeyNotRedeemable) {
		// 並行有効化で敗北した。最新状態から正確なエラーを導く。
		return nil, s.lostRedeemRace(ctx, code)
	}
	if err != nil {
		return nil, s.systemError("activate", err)
	}

	slog.Info("card key activated",
		slog.String("user_id", user.ID),
		slog.Int("tier", key.Tier),
		slog.Int("days_added", key.Days),
	)
	s.metrics.RecordActivation(key.Tier)

	return &ActivationResult{
		Email:       user.Email,
		Tier:        member.Tier,
		TierName:    TierName(member.Tier),
		ExpireTime:  member.ExpireTime,
		DaysAdded:   key.Days,
		LyricsAdded: key.LyricsLimit,
		MusicAdded:  key.MusicLimit,
	}, nil
}

// keyStatusError はunredeemed以外の状態に対応する業務エラーを返す。
func keyStatusError(key *model.CardKey) *model.APIError {
	switch key.Status {
	case model.KeyStatusRedeemed:
		return model.NewKeyAlreadyRedeemedError(key.RedeemedBy)
	case model.KeyStatusFrozen:
		return model.NewKeyFrozenError()
	case model.KeyStatusConsumed:
		return model.NewKeyConsumedError()
	}
	return nil
}

// lostRedeemRace は条件付きUPDATEに敗れた後の最新状態を読み直してエラー化する。
func (s *Service) lostRedeemRace(ctx context.Context, code string) error {
	key, err := s.keyRepo.FindByCode(ctx, code)
	if err != nil {
		return s.systemError("activate", err)
	}
	if key == nil {
		return model.NewKeyNotFoundError()
	}
	if apiErr := keyStatusError(key); apiErr != nil {
		return apiErr
	}
	// 読み直した時点でunredeemedへ戻ることはないが、念のため
	return model.NewKeyAlreadyRedeemedError(key.RedeemedBy)
}

// CheckMembership はユーザーの有効な会員権を返す。
// 会員でない場合は (nil, nil) を返し、呼び出し側が非会員として扱う。
// 照会の最終時刻はlast_checkとして記録される。
func (s *Service) CheckMembership(ctx context.Context, email string) (*model.Membership, error) {
	if email == "" {
		return nil, model.NewInvalidRequestError("メールアドレスは必須です")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.systemError("check", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.now()
	member, err := s.memberRepo.FindActiveByUserID(ctx, user.ID, now)
	if err != nil {
		return nil, s.systemError("check", err)
	}
	if member == nil {
		return nil, nil
	}

	if err := s.memberRepo.TouchLastCheck(ctx, user.ID, now); err != nil {
		// 照会時刻の記録失敗は照会結果を壊さない
		slog.Warn("failed to record last check time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return member, nil
}

// UsageResult は利用計測の結果を表す。
type UsageResult struct {
	UsageType model.UsageType
	Remaining int
}

// RecordUsage は指定種別の使用済みカウンタを1増やし、残回数を返す。
// カウンタの増加は used < limit を条件とする単一UPDATEで行われるため、
// 並行リクエストでも上限を超えて加算されることはない。
func (s *Service) RecordUsage(ctx context.Context, email, usageType string) (*UsageResult, error) {
	if email == "" {
		return nil, model.NewInvalidRequestError("メールアドレスは必須です")
	}
	ut := model.UsageType(usageType)
	if !ut.Valid() {
		return nil, model.NewInvalidUsageTypeError(usageType)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.systemError("record", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.now()
	remaining, err := s.memberRepo.ConsumeQuota(ctx, user.ID, user.Email, ut, now)
	switch {
	case errors.Is(err, repository.ErrNoActiveMembership):
		return nil, model.NewNotMemberError()
	case errors.Is(err, repository.ErrQuotaExhausted):
		s.metrics.RecordQuotaExhausted(string(ut))
		return nil, s.quotaExhaustedError(ctx, user.ID, ut, now)
	case err != nil:
		return nil, s.systemError("record", err)
	}

	s.metrics.RecordUsage(string(ut))

	return &UsageResult{UsageType: ut, Remaining: remaining}, nil
}

// quotaExhaustedError は上限到達エラーに現在の上限値を添えて返す。
func (s *Service) quotaExhaustedError(ctx context.Context, userID string, ut model.UsageType, now time.Time) error {
	limit := 0
	if member, err := s.memberRepo.FindActiveByUserID(ctx, userID, now); err == nil && member != nil {
		if ut == model.UsageLyrics {
			limit = member.LyricsLimit
		} else {
			limit = member.MusicLimit
		}
	}
	return model.NewQuotaExhaustedError(ut, limit)
}

// Stats はサービス全体の集計値を表す。
type Stats struct {
	Users        int
	Members      int
	KeysByStatus map[model.KeyStatus]int
}

// Stats は登録ユーザー数・会員権行数・状態別カードキー枚数を集計する。
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, s.systemError("stats", err)
	}
	members, err := s.memberRepo.Count(ctx)
	if err != nil {
		return nil, s.systemError("stats", err)
	}
	keys, err := s.keyRepo.CountByStatus(ctx)
	if err != nil {
		return nil, s.systemError("stats", err)
	}

	return &Stats{
		Users:        users,
		Members:      members,
		KeysByStatus: keys,
	}, nil
}

// systemError はストレージ障害をログに記録しSystemErrorへ変換する。
func (s *Service) systemError(op string, err error) error {
	slog.Error("vip storage failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewSystemError(fmt.Sprintf("%s処理に失敗しました", op))
}

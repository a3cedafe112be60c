// Package auth はユーザー登録、ログイン、デバイス紐付けを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vipgate/internal/model"
	"github.com/hitoshi/vipgate/internal/repository"
)

// emailPattern は許可するメールアドレスの形式。
// ユーザー名部分が数字のみのQQメールアドレスに限定する（製品ポリシー）。
var emailPattern = regexp.MustCompile(`^\d+@qq\.com$`)

// MetricsRecorder は認証サービスが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	// RecordRegistration は登録成功を記録する。
	RecordRegistration()
	// RecordLogin はログイン試行の結果（success / failure）を記録する。
	RecordLogin(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// LoginFailDelay はログイン失敗時に挿入する固定遅延。
	// ユーザー列挙と総当たり攻撃のタイミング情報を鈍らせる。
	LoginFailDelay time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo   repository.UserRepository
	memberRepo repository.MembershipRepository
	metrics    MetricsRecorder
	config     ServiceConfig

	// now と sleep はテストから差し替える
	now   func() time.Time
	sleep func(time.Duration)
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	memberRepo repository.MembershipRepository,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:   userRepo,
		memberRepo: memberRepo,
		metrics:    metrics,
		config:     config,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// RegisterResult は登録成功時の結果。
// VerificationKeyはこのレスポンスで一度だけ返され、以後再表示されない。
type RegisterResult struct {
	UserID          string
	Email           string
	VerificationKey string
	CreatedAt       time.Time
}

// Register は新規ユーザーを登録する。
// メールアドレスは数字@qq.comに限定し、パスワードは8文字以上・
// 英字1文字以上・数字5文字以上を要求する。
func (s *Service) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	if !emailPattern.MatchString(email) {
		return nil, model.NewInvalidEmailError()
	}
	if reason := validatePassword(password); reason != "" {
		return nil, model.NewInvalidPasswordError(reason)
	}

	// 事前チェックで親切なエラーを返す。競合時はCreateの一意制約が最終防衛線。
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.systemError("register", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, s.systemError("register", err)
	}
	verificationKey, err := GenerateVerificationKey()
	if err != nil {
		return nil, s.systemError("register", err)
	}

	user := &model.User{
		ID:              uuid.New().String(),
		Email:           email,
		PasswordHash:    HashPassword(password, salt),
		Salt:            salt,
		VerificationKey: verificationKey,
		CreatedAt:       s.now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrDuplicateEmail {
			return nil, model.NewEmailTakenError()
		}
		return nil, s.systemError("register", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	s.metrics.RecordRegistration()

	return &RegisterResult{
		UserID:          user.ID,
		Email:           user.Email,
		VerificationKey: verificationKey,
		CreatedAt:       user.CreatedAt,
	}, nil
}

// validatePassword はパスワード規則を検証し、違反した規則の説明を返す。
// すべて満たす場合は空文字を返す。
func validatePassword(password string) string {
	if len(password) < 8 {
		return "8文字以上が必要です"
	}
	letters, digits := 0, 0
	for _, c := range password {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			letters++
		case c >= '0' && c <= '9':
			digits++
		}
	}
	if letters < 1 {
		return "英字を1文字以上含めてください"
	}
	if digits < 5 {
		return "数字を5文字以上含めてください"
	}
	return ""
}

// LoginInput はログインリクエストの入力。
type LoginInput struct {
	Email           string
	Password        string
	VerificationKey string
	HardwareID      string
}

// MemberStatus はログイン・会員照会レスポンスに添付する会員権の計算済みビュー。
type MemberStatus struct {
	Tier            int
	ExpireTime      time.Time
	RemainingDays   int
	LyricsRemaining int
	MusicRemaining  int
	LyricsUsed      int
	LyricsLimit     int
	MusicUsed       int
	MusicLimit      int
}

// NewMemberStatus は会員権から計算済みビューを構築する。
func NewMemberStatus(m *model.Membership, now time.Time) *MemberStatus {
	return &MemberStatus{
		Tier:            m.Tier,
		ExpireTime:      m.ExpireTime,
		RemainingDays:   m.RemainingDays(now),
		LyricsRemaining: m.LyricsRemaining(),
		MusicRemaining:  m.MusicRemaining(),
		LyricsUsed:      m.LyricsUsed,
		LyricsLimit:     m.LyricsLimit,
		MusicUsed:       m.MusicUsed,
		MusicLimit:      m.MusicLimit,
	}
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	UserID    string
	Email     string
	IsMember  bool
	LastLogin time.Time
	Member    *MemberStatus
}

// Login は認証情報を検証し、デバイス紐付けを適用する。
//
// デバイス紐付けの状態機械:
//  1. 保存済みデバイスIDがない（初回ログイン）: 無条件で許可し、
//     デバイスIDが提供されていれば紐付ける。検証キーは不要。
//  2. 保存済みデバイスIDと一致: 許可。検証キーは不要。
//  3. 保存済みデバイスIDと不一致（または未提供）: 検証キーを要求し、
//     一致した場合のみ新しいデバイスIDで上書きする。
//
// ユーザー不在とパスワード誤りは同一メッセージで返し、固定遅延を挿入する。
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.Email == "" || in.Password == "" {
		return nil, model.NewInvalidRequestError("メールアドレスとパスワードは必須です")
	}

	user, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, s.systemError("login", err)
	}
	if user == nil {
		return nil, s.failAuth()
	}

	if !VerifyPassword(in.Password, user.Salt, user.PasswordHash) {
		return nil, s.failAuth()
	}

	now := s.now()

	switch {
	case user.HardwareID == "":
		// 初回ログイン。デバイスIDがあれば紐付ける。
		if in.HardwareID != "" {
			if err := s.userRepo.BindHardwareID(ctx, user.ID, in.HardwareID); err != nil {
				return nil, s.systemError("login", err)
			}
		}

	case in.HardwareID == user.HardwareID:
		// 紐付け済みデバイスからのログイン

	default:
		// 新しいデバイス。検証キーを要求する。
		if in.VerificationKey == "" {
			s.metrics.RecordLogin("failure")
			return nil, model.NewDeviceVerificationError()
		}
		if in.VerificationKey != user.VerificationKey {
			s.metrics.RecordLogin("failure")
			return nil, model.NewVerificationKeyError()
		}
		if in.HardwareID != "" {
			if err := s.userRepo.BindHardwareID(ctx, user.ID, in.HardwareID); err != nil {
				return nil, s.systemError("login", err)
			}
			slog.Info("hardware id rebound",
				slog.String("user_id", user.ID),
			)
		}
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, s.systemError("login", err)
	}

	member, err := s.memberRepo.FindActiveByUserID(ctx, user.ID, now)
	if err != nil {
		return nil, s.systemError("login", err)
	}

	result := &LoginResult{
		UserID:    user.ID,
		Email:     user.Email,
		IsMember:  member != nil,
		LastLogin: now,
	}
	if member != nil {
		result.Member = NewMemberStatus(member, now)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("is_member", result.IsMember),
	)
	s.metrics.RecordLogin("success")

	return result, nil
}

// failAuth は遅延を挿入してから統一認証エラーを返す。
func (s *Service) failAuth() error {
	s.sleep(s.config.LoginFailDelay)
	s.metrics.RecordLogin("failure")
	return model.NewAuthFailedError()
}

// systemError はストレージ障害をログに記録しSystemErrorへ変換する。
func (s *Service) systemError(op string, err error) error {
	slog.Error("auth storage failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewSystemError(fmt.Sprintf("%s処理に失敗しました", op))
}

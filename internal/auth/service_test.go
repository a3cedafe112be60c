package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/vipgate/internal/model"
	"github.com/hitoshi/vipgate/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByEmailFn     func(ctx context.Context, email string) (*model.User, error)
	createFn          func(ctx context.Context, user *model.User) error
	bindHardwareIDFn  func(ctx context.Context, userID, hardwareID string) error
	updateLastLoginFn func(ctx context.Context, userID string, at time.Time) error
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) BindHardwareID(ctx context.Context, userID, hardwareID string) error {
	if m.bindHardwareIDFn != nil {
		return m.bindHardwareIDFn(ctx, userID, hardwareID)
	}
	return nil
}
func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, userID, at)
	}
	return nil
}
func (m *mockUserRepo) Count(ctx context.Context) (int, error) { return 0, nil }

type mockMembershipRepo struct {
	findActiveFn func(ctx context.Context, userID string, now time.Time) (*model.Membership, error)
}

func (m *mockMembershipRepo) FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Membership, error) {
	if m.findActiveFn != nil {
		return m.findActiveFn(ctx, userID, now)
	}
	return nil, nil
}
func (m *mockMembershipRepo) Redeem(ctx context.Context, user *model.User, key *model.CardKey, hardwareID string, now time.Time) (*model.Membership, error) {
	return nil, nil
}
func (m *mockMembershipRepo) ConsumeQuota(ctx context.Context, userID, email string, usageType model.UsageType, now time.Time) (int, error) {
	return 0, nil
}
func (m *mockMembershipRepo) TouchLastCheck(ctx context.Context, userID string, now time.Time) error {
	return nil
}
func (m *mockMembershipRepo) Count(ctx context.Context) (int, error) { return 0, nil }

type mockMetrics struct {
	registrations int
	logins        map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{logins: make(map[string]int)}
}
func (m *mockMetrics) RecordRegistration()       { m.registrations++ }
func (m *mockMetrics) RecordLogin(result string) { m.logins[result]++ }

// newTestService はテスト用のServiceを構築する。
// 時刻は固定し、遅延は実際には待たずに記録だけする。
func newTestService(userRepo *mockUserRepo, memberRepo *mockMembershipRepo) (*Service, *mockMetrics, *time.Duration) {
	metrics := newMockMetrics()
	svc := NewService(userRepo, memberRepo, metrics, ServiceConfig{LoginFailDelay: 750 * time.Millisecond})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	var slept time.Duration
	svc.sleep = func(d time.Duration) { slept += d }
	return svc, metrics, &slept
}

// --- 登録テスト ---

func TestRegister_Success(t *testing.T) {
	var created *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc, metrics, _ := newTestService(userRepo, &mockMembershipRepo{})

	result, err := svc.Register(context.Background(), "123456789@qq.com", "abc12345")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Email != "123456789@qq.com" {
		t.Errorf("Email = %q", result.Email)
	}
	if len(result.VerificationKey) != 6 {
		t.Errorf("verification key length = %d, want 6", len(result.VerificationKey))
	}
	if created == nil {
		t.Fatal("user should be persisted")
	}
	if len(created.Salt) != 32 {
		t.Errorf("salt length = %d, want 32 hex chars", len(created.Salt))
	}
	if len(created.PasswordHash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(created.PasswordHash))
	}
	if created.PasswordHash != HashPassword("abc12345", created.Salt) {
		t.Error("stored hash should equal SHA-256(password + salt)")
	}
	if metrics.registrations != 1 {
		t.Errorf("registrations = %d, want 1", metrics.registrations)
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(&mockUserRepo{}, &mockMembershipRepo{})

	tests := []string{
		"alice@qq.com",       // 数字以外のユーザー名
		"123456789@gmail.com", // qq.com以外のドメイン
		"123456789qq.com",
		"",
	}

	for _, email := range tests {
		t.Run(email, func(t *testing.T) {
			_, err := svc.Register(context.Background(), email, "abc12345")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidEmail {
				t.Errorf("err = %v, want INVALID_EMAIL", err)
			}
		})
	}
}

func TestRegister_InvalidPassword(t *testing.T) {
	svc, _, _ := newTestService(&mockUserRepo{}, &mockMembershipRepo{})

	tests := []struct {
		name     string
		password string
	}{
		{"短すぎる", "a12345"},
		{"英字がない", "12345678"},
		{"数字が足りない", "abcdefg1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), "123456789@qq.com", tt.password)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPassword {
				t.Errorf("err = %v, want INVALID_PASSWORD", err)
			}
		})
	}
}

func TestRegister_EmailTaken(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
	}
	svc, _, _ := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Register(context.Background(), "123456789@qq.com", "abc12345")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Errorf("err = %v, want EMAIL_TAKEN", err)
	}
}

// 事前チェックをすり抜けた競合はINSERTの一意制約違反で検出される。
func TestRegister_EmailTakenRace(t *testing.T) {
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateEmail
		},
	}
	svc, _, _ := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Register(context.Background(), "123456789@qq.com", "abc12345")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Errorf("err = %v, want EMAIL_TAKEN", err)
	}
}

// --- ログインテスト ---

// knownUser はログインテスト用の登録済みユーザーを生成する。
func knownUser(hardwareID string) *model.User {
	salt := "00112233445566778899aabbccddeeff"
	return &model.User{
		ID:              "user-1",
		Email:           "123456789@qq.com",
		PasswordHash:    HashPassword("abc12345", salt),
		Salt:            salt,
		VerificationKey: "A1B2C3",
		HardwareID:      hardwareID,
	}
}

func TestLogin_UnknownUser_UniformErrorWithDelay(t *testing.T) {
	svc, metrics, slept := newTestService(&mockUserRepo{}, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "999@qq.com", Password: "abc12345"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthFailed {
		t.Fatalf("err = %v, want AUTH_FAILED", err)
	}
	if *slept != 750*time.Millisecond {
		t.Errorf("slept = %v, want 750ms", *slept)
	}
	if metrics.logins["failure"] != 1 {
		t.Errorf("failure logins = %d, want 1", metrics.logins["failure"])
	}
}

func TestLogin_WrongPassword_SameMessageAsUnknownUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser(""), nil
		},
	}
	svc, _, slept := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "123456789@qq.com", Password: "wrong1234"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthFailed {
		t.Fatalf("err = %v, want AUTH_FAILED", err)
	}
	if *slept == 0 {
		t.Error("expected anti-brute-force delay on wrong password")
	}

	// ユーザー不在時と同一メッセージであること（どちらが誤りかを開示しない）
	unknownErr := model.NewAuthFailedError()
	if apiErr.Message != unknownErr.Message {
		t.Errorf("message %q differs from unknown-user message %q", apiErr.Message, unknownErr.Message)
	}
}

func TestLogin_FirstLogin_BindsHardwareID(t *testing.T) {
	bound := ""
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser(""), nil
		},
		bindHardwareIDFn: func(ctx context.Context, userID, hardwareID string) error {
			bound = hardwareID
			return nil
		},
	}
	svc, metrics, _ := newTestService(userRepo, &mockMembershipRepo{})

	result, err := svc.Login(context.Background(), LoginInput{
		Email:      "123456789@qq.com",
		Password:   "abc12345",
		HardwareID: "PC-001-XXXX",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if bound != "PC-001-XXXX" {
		t.Errorf("bound hardware id = %q, want PC-001-XXXX", bound)
	}
	if result.IsMember {
		t.Error("IsMember should be false without membership")
	}
	if metrics.logins["success"] != 1 {
		t.Errorf("success logins = %d, want 1", metrics.logins["success"])
	}
}

func TestLogin_SameDevice_NoVerificationKeyNeeded(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser("PC-001-XXXX"), nil
		},
	}
	svc, _, _ := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{
		Email:      "123456789@qq.com",
		Password:   "abc12345",
		HardwareID: "PC-001-XXXX",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestLogin_NewDevice_RequiresVerificationKey(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser("PC-001-XXXX"), nil
		},
	}
	svc, _, _ := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{
		Email:      "123456789@qq.com",
		Password:   "abc12345",
		HardwareID: "PC-002-YYYY",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDeviceVerification {
		t.Errorf("err = %v, want DEVICE_VERIFICATION_REQUIRED", err)
	}
}

func TestLogin_NewDevice_WrongVerificationKey(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser("PC-001-XXXX"), nil
		},
	}
	svc, _, _ := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{
		Email:           "123456789@qq.com",
		Password:        "abc12345",
		HardwareID:      "PC-002-YYYY",
		VerificationKey: "WRONG1",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeVerificationKey {
		t.Errorf("err = %v, want VERIFICATION_KEY_MISMATCH", err)
	}
}

func TestLogin_NewDevice_CorrectKeyRebindsDevice(t *testing.T) {
	bound := ""
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser("PC-001-XXXX"), nil
		},
		bindHardwareIDFn: func(ctx context.Context, userID, hardwareID string) error {
			bound = hardwareID
			return nil
		},
	}
	svc, _, _ := newTestService(userRepo, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{
		Email:           "123456789@qq.com",
		Password:        "abc12345",
		HardwareID:      "PC-002-YYYY",
		VerificationKey: "A1B2C3",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if bound != "PC-002-YYYY" {
		t.Errorf("bound hardware id = %q, want PC-002-YYYY", bound)
	}
}

func TestLogin_AttachesMembershipView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return knownUser(""), nil
		},
	}
	memberRepo := &mockMembershipRepo{
		findActiveFn: func(ctx context.Context, userID string, at time.Time) (*model.Membership, error) {
			return &model.Membership{
				Tier:        2,
				LyricsLimit: 200,
				LyricsUsed:  5,
				MusicLimit:  50,
				MusicUsed:   2,
				ExpireTime:  now.AddDate(0, 0, 30),
			}, nil
		},
	}
	svc, _, _ := newTestService(userRepo, memberRepo)

	result, err := svc.Login(context.Background(), LoginInput{Email: "123456789@qq.com", Password: "abc12345"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.IsMember || result.Member == nil {
		t.Fatal("expected membership view attached")
	}
	if result.Member.LyricsRemaining != 195 {
		t.Errorf("LyricsRemaining = %d, want 195", result.Member.LyricsRemaining)
	}
	if result.Member.MusicRemaining != 48 {
		t.Errorf("MusicRemaining = %d, want 48", result.Member.MusicRemaining)
	}
	if result.Member.RemainingDays != 30 {
		t.Errorf("RemainingDays = %d, want 30", result.Member.RemainingDays)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	svc, _, _ := newTestService(&mockUserRepo{}, &mockMembershipRepo{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "", Password: ""})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/vipgate/internal/model"
	"github.com/hitoshi/vipgate/internal/vip"
)

// mockVIPService はVIPServiceInterfaceのモック実装。
type mockVIPService struct {
	issueFn       func(ctx context.Context, tier, quantity int) ([]*model.CardKey, error)
	activateFn    func(ctx context.Context, code, email, hardwareID string) (*vip.ActivationResult, error)
	checkFn       func(ctx context.Context, email string) (*model.Membership, error)
	recordUsageFn func(ctx context.Context, email, usageType string) (*vip.UsageResult, error)
}

func (m *mockVIPService) Issue(ctx context.Context, tier, quantity int) ([]*model.CardKey, error) {
	return m.issueFn(ctx, tier, quantity)
}
func (m *mockVIPService) Activate(ctx context.Context, code, email, hardwareID string) (*vip.ActivationResult, error) {
	return m.activateFn(ctx, code, email, hardwareID)
}
func (m *mockVIPService) CheckMembership(ctx context.Context, email string) (*model.Membership, error) {
	return m.checkFn(ctx, email)
}
func (m *mockVIPService) RecordUsage(ctx context.Context, email, usageType string) (*vip.UsageResult, error) {
	return m.recordUsageFn(ctx, email, usageType)
}

func TestVIPHandler_Generate_DefaultsTierAndQuantity(t *testing.T) {
	var gotTier, gotQuantity int
	service := &mockVIPService{
		issueFn: func(ctx context.Context, tier, quantity int) ([]*model.CardKey, error) {
			gotTier, gotQuantity = tier, quantity
			return []*model.CardKey{
				{Code: "VIP-AAAA-BBBB-CCCC-DDDD", Tier: tier, Days: 30, LyricsLimit: 200, MusicLimit: 50},
			}, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/generate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if gotTier != 2 || gotQuantity != 1 {
		t.Errorf("defaults = tier %d quantity %d, want 2 and 1", gotTier, gotQuantity)
	}

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Fatalf("success = %v, want true", body["success"])
	}
	keys := body["keys"].([]any)
	if len(keys) != 1 {
		t.Fatalf("keys length = %d, want 1", len(keys))
	}
	key := keys[0].(map[string]any)
	if key["key"] != "VIP-AAAA-BBBB-CCCC-DDDD" || key["level"] != float64(2) {
		t.Errorf("key = %v", key)
	}
}

func TestVIPHandler_Generate_ExplicitValues(t *testing.T) {
	var gotTier, gotQuantity int
	service := &mockVIPService{
		issueFn: func(ctx context.Context, tier, quantity int) ([]*model.CardKey, error) {
			gotTier, gotQuantity = tier, quantity
			return nil, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/generate",
		strings.NewReader(`{"vip_level":4,"quantity":10}`))
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if gotTier != 4 || gotQuantity != 10 {
		t.Errorf("tier = %d quantity = %d, want 4 and 10", gotTier, gotQuantity)
	}
}

func TestVIPHandler_Generate_AdminTokenRequired(t *testing.T) {
	called := false
	service := &mockVIPService{
		issueFn: func(ctx context.Context, tier, quantity int) ([]*model.CardKey, error) {
			called = true
			return nil, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{AdminToken: "secret"})

	// トークンなしは拒否
	req := httptest.NewRequest(http.MethodPost, "/api/vip/generate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Generate(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 without token", w.Code)
	}
	if called {
		t.Error("service should not be called without token")
	}

	// 正しいトークンは許可
	req = httptest.NewRequest(http.MethodPost, "/api/vip/generate", strings.NewReader(`{}`))
	req.Header.Set("X-Admin-Token", "secret")
	w = httptest.NewRecorder()
	h.Generate(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with token", w.Code)
	}
	if !called {
		t.Error("service should be called with valid token")
	}
}

func TestVIPHandler_Activate_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := &mockVIPService{
		activateFn: func(ctx context.Context, code, email, hardwareID string) (*vip.ActivationResult, error) {
			return &vip.ActivationResult{
				Email:       email,
				Tier:        2,
				TierName:    "月額会員",
				ExpireTime:  now.AddDate(0, 0, 30),
				DaysAdded:   30,
				LyricsAdded: 200,
				MusicAdded:  50,
			}, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/activate",
		strings.NewReader(`{"card_key":"VIP-AAAA-BBBB-CCCC-DDDD","email":"123456789@qq.com"}`))
	w := httptest.NewRecorder()

	h.Activate(w, req)

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Fatalf("success = %v, want true", body["success"])
	}
	member := body["member"].(map[string]any)
	if member["vip_name"] != "月額会員" || member["days_added"] != float64(30) {
		t.Errorf("member = %v", member)
	}
}

func TestVIPHandler_Activate_AlreadyRedeemed(t *testing.T) {
	service := &mockVIPService{
		activateFn: func(ctx context.Context, code, email, hardwareID string) (*vip.ActivationResult, error) {
			return nil, model.NewKeyAlreadyRedeemedError("111@qq.com")
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/activate",
		strings.NewReader(`{"card_key":"VIP-AAAA-BBBB-CCCC-DDDD","email":"123456789@qq.com"}`))
	w := httptest.NewRecorder()

	h.Activate(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for domain failure", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != model.ErrCodeKeyAlreadyRedeemed {
		t.Errorf("code = %v, want KEY_ALREADY_REDEEMED", body["code"])
	}
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "111@qq.com") {
		t.Errorf("message %q should name the redeeming user", msg)
	}
}

func TestVIPHandler_Check_Member(t *testing.T) {
	now := time.Now()
	service := &mockVIPService{
		checkFn: func(ctx context.Context, email string) (*model.Membership, error) {
			return &model.Membership{
				Tier:        3,
				LyricsLimit: 600,
				LyricsUsed:  100,
				MusicLimit:  150,
				MusicUsed:   20,
				ExpireTime:  now.AddDate(0, 0, 60),
			}, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/check",
		strings.NewReader(`{"email":"123456789@qq.com"}`))
	w := httptest.NewRecorder()

	h.Check(w, req)

	body := decodeBody(t, w)
	if body["is_member"] != true {
		t.Fatalf("is_member = %v, want true", body["is_member"])
	}
	member := body["member"].(map[string]any)
	if member["vip_level"] != float64(3) || member["vip_name"] != "四半期会員" {
		t.Errorf("member = %v", member)
	}
	if member["lyrics_remaining"] != float64(500) {
		t.Errorf("lyrics_remaining = %v, want 500", member["lyrics_remaining"])
	}
}

func TestVIPHandler_Check_NotMember(t *testing.T) {
	service := &mockVIPService{
		checkFn: func(ctx context.Context, email string) (*model.Membership, error) {
			return nil, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/check",
		strings.NewReader(`{"email":"123456789@qq.com"}`))
	w := httptest.NewRecorder()

	h.Check(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true for non-member check", body["success"])
	}
	if body["is_member"] != false {
		t.Errorf("is_member = %v, want false", body["is_member"])
	}
}

func TestVIPHandler_Record_Success(t *testing.T) {
	service := &mockVIPService{
		recordUsageFn: func(ctx context.Context, email, usageType string) (*vip.UsageResult, error) {
			return &vip.UsageResult{UsageType: model.UsageLyrics, Remaining: 194}, nil
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/record",
		strings.NewReader(`{"email":"123456789@qq.com","type":"lyrics"}`))
	w := httptest.NewRecorder()

	h.Record(w, req)

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Fatalf("success = %v, want true", body["success"])
	}
	if body["remaining"] != float64(194) || body["usage_type"] != "lyrics" {
		t.Errorf("body = %v", body)
	}
}

func TestVIPHandler_Record_QuotaExhausted(t *testing.T) {
	service := &mockVIPService{
		recordUsageFn: func(ctx context.Context, email, usageType string) (*vip.UsageResult, error) {
			return nil, model.NewQuotaExhaustedError(model.UsageMusic, 50)
		},
	}
	h := NewVIPHandler(service, VIPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/vip/record",
		strings.NewReader(`{"email":"123456789@qq.com","type":"music"}`))
	w := httptest.NewRecorder()

	h.Record(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for quota exhaustion", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != false || body["code"] != model.ErrCodeQuotaExhausted {
		t.Errorf("body = %v, want QUOTA_EXHAUSTED failure", body)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/vipgate/internal/auth"
	"github.com/hitoshi/vipgate/internal/vip"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register は新規ユーザーを登録し、検証キーを発行する。
	Register(ctx context.Context, email, password string) (*auth.RegisterResult, error)
	// Login は認証情報を検証し、デバイス紐付けを適用する。
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	VerificationKey string `json:"verification_key"`
	HardwareID      string `json:"hardware_id"`
}

// memberResponse は会員権ビューのAPIレスポンス。
type memberResponse struct {
	VIPLevel        int       `json:"vip_level"`
	VIPName         string    `json:"vip_name"`
	ExpireTime      time.Time `json:"expire_time"`
	RemainingDays   int       `json:"remaining_days"`
	LyricsRemaining int       `json:"lyrics_remaining"`
	MusicRemaining  int       `json:"music_remaining"`
	LyricsUsed      int       `json:"lyrics_used"`
	LyricsLimit     int       `json:"lyrics_limit"`
	MusicUsed       int       `json:"music_used"`
	MusicLimit      int       `json:"music_limit"`
}

// toMemberResponse はMemberStatusをAPIレスポンス形式へ変換する。
func toMemberResponse(m *auth.MemberStatus) memberResponse {
	return memberResponse{
		VIPLevel:        m.Tier,
		VIPName:         vip.TierName(m.Tier),
		ExpireTime:      m.ExpireTime,
		RemainingDays:   m.RemainingDays,
		LyricsRemaining: m.LyricsRemaining,
		MusicRemaining:  m.MusicRemaining,
		LyricsUsed:      m.LyricsUsed,
		LyricsLimit:     m.LyricsLimit,
		MusicUsed:       m.MusicUsed,
		MusicLimit:      m.MusicLimit,
	}
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	result, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, "登録が完了しました。検証キーを安全に保管してください。", envelope{
		"user": envelope{
			"id":         result.UserID,
			"email":      result.Email,
			"created_at": result.CreatedAt,
		},
		"verification_key": result.VerificationKey,
	})
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:           req.Email,
		Password:        req.Password,
		VerificationKey: req.VerificationKey,
		HardwareID:      req.HardwareID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	extra := envelope{
		"user": envelope{
			"id":         result.UserID,
			"email":      result.Email,
			"is_member":  result.IsMember,
			"last_login": result.LastLogin,
		},
	}
	if result.Member != nil {
		extra["member"] = toMemberResponse(result.Member)
	}

	writeSuccess(w, "ログインしました。", extra)
}

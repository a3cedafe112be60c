package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/vipgate/internal/auth"
	"github.com/hitoshi/vipgate/internal/model"
	"github.com/hitoshi/vipgate/internal/vip"
)

// timeNow はテストで差し替え可能な現在時刻関数。
var timeNow = time.Now

// VIPServiceInterface はVIPハンドラーが必要とするサービスインターフェース。
type VIPServiceInterface interface {
	// Issue は指定等級のカードキーをquantity枚発行する。
	Issue(ctx context.Context, tier, quantity int) ([]*model.CardKey, error)
	// Activate はカードキーを有効化し、会員権へマージする。
	Activate(ctx context.Context, code, email, hardwareID string) (*vip.ActivationResult, error)
	// CheckMembership は有効な会員権を返す。非会員は(nil, nil)。
	CheckMembership(ctx context.Context, email string) (*model.Membership, error)
	// RecordUsage は利用回数を1消費し、残回数を返す。
	RecordUsage(ctx context.Context, email, usageType string) (*vip.UsageResult, error)
}

// VIPHandlerConfig はVIPハンドラーの設定。
type VIPHandlerConfig struct {
	// AdminToken が空でない場合、発行APIはX-Admin-Tokenヘッダーの一致を要求する。
	AdminToken string
}

// VIPHandler はカードキーと会員権のHTTPハンドラー。
type VIPHandler struct {
	service VIPServiceInterface
	config  VIPHandlerConfig
}

// NewVIPHandler はVIPHandlerを生成する。
func NewVIPHandler(service VIPServiceInterface, config VIPHandlerConfig) *VIPHandler {
	return &VIPHandler{service: service, config: config}
}

// generateRequest はカードキー発行リクエストのボディ。
type generateRequest struct {
	VIPLevel *int `json:"vip_level"`
	Quantity *int `json:"quantity"`
}

// activateRequest はカードキー有効化リクエストのボディ。
type activateRequest struct {
	CardKey    string `json:"card_key"`
	Email      string `json:"email"`
	HardwareID string `json:"hardware_id"`
}

// emailRequest はメールアドレスのみを受け取るリクエストのボディ。
type emailRequest struct {
	Email string `json:"email"`
}

// recordRequest は利用計測リクエストのボディ。
type recordRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

// issuedKeyResponse は発行済みカードキーのAPIレスポンス。
type issuedKeyResponse struct {
	Key    string `json:"key"`
	Level  int    `json:"level"`
	Days   int    `json:"days"`
	Lyrics int    `json:"lyrics"`
	Music  int    `json:"music"`
}

// Generate はカードキー発行を処理する。
// POST /api/vip/generate
//
// vip_levelとquantityは省略可能で、それぞれ2と1が既定値。
func (h *VIPHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.config.AdminToken != "" && r.Header.Get("X-Admin-Token") != h.config.AdminToken {
		writeJSON(w, http.StatusForbidden, envelope{
			"success":  false,
			"message":  "このAPIの実行には管理者トークンが必要です。",
			"code":     "ADMIN_TOKEN_REQUIRED",
			"category": "auth",
			"action":   "X-Admin-Tokenヘッダーを設定してください。",
		})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	tier := 2
	if req.VIPLevel != nil {
		tier = *req.VIPLevel
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	keys, err := h.service.Issue(r.Context(), tier, quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	issued := make([]issuedKeyResponse, 0, len(keys))
	for _, key := range keys {
		issued = append(issued, issuedKeyResponse{
			Key:    key.Code,
			Level:  key.Tier,
			Days:   key.Days,
			Lyrics: key.LyricsLimit,
			Music:  key.MusicLimit,
		})
	}

	writeSuccess(w, "カードキーを発行しました。", envelope{
		"keys": issued,
	})
}

// Activate はカードキー有効化を処理する。
// POST /api/vip/activate
func (h *VIPHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	result, err := h.service.Activate(r.Context(), req.CardKey, req.Email, req.HardwareID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, "カードキーを有効化しました。", envelope{
		"member": envelope{
			"email":        result.Email,
			"vip_level":    result.Tier,
			"vip_name":     result.TierName,
			"expire_time":  result.ExpireTime,
			"days_added":   result.DaysAdded,
			"lyrics_added": result.LyricsAdded,
			"music_added":  result.MusicAdded,
		},
	})
}

// Check は会員状態の照会を処理する。
// POST /api/vip/check
//
// 非会員はエラーではなく is_member: false の成功レスポンスで返す。
func (h *VIPHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	member, err := h.service.CheckMembership(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if member == nil {
		writeSuccess(w, "会員ではありません。", envelope{
			"is_member": false,
		})
		return
	}

	// MemberStatusの計算済みビューをそのまま再利用する
	status := auth.NewMemberStatus(member, timeNow())
	writeSuccess(w, "会員です。", envelope{
		"is_member": true,
		"member":    toMemberResponse(status),
	})
}

// Record は利用計測を処理する。
// POST /api/vip/record
func (h *VIPHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	result, err := h.service.RecordUsage(r.Context(), req.Email, req.Type)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, "利用を記録しました。", envelope{
		"usage_type": string(result.UsageType),
		"remaining":  result.Remaining,
	})
}

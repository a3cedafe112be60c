package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/vipgate/internal/model"
	"github.com/hitoshi/vipgate/internal/vip"
)

// StatsProvider はサービス全体の集計値を提供するインターフェース。
type StatsProvider interface {
	Stats(ctx context.Context) (*vip.Stats, error)
}

// DBPinger はデータベースの疎通確認インターフェース。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// StatusHandler は稼働状態と集計値のHTTPハンドラー。
type StatusHandler struct {
	stats  StatsProvider
	pinger DBPinger
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(stats StatsProvider, pinger DBPinger) *StatusHandler {
	return &StatusHandler{stats: stats, pinger: pinger}
}

// Status はサービスの集計値を返す。
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	keys := envelope{
		"unredeemed": stats.KeysByStatus[model.KeyStatusUnredeemed],
		"redeemed":   stats.KeysByStatus[model.KeyStatusRedeemed],
		"consumed":   stats.KeysByStatus[model.KeyStatusConsumed],
		"frozen":     stats.KeysByStatus[model.KeyStatusFrozen],
	}

	writeSuccess(w, "稼働中です。", envelope{
		"service": "vipgate",
		"users":   stats.Users,
		"members": stats.Members,
		"keys":    keys,
	})
}

// Test はAPIの疎通確認に応答する。
// GET /api/test
func (h *StatusHandler) Test(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "APIは正常に動作しています。", nil)
}

// Health はデータベース接続を含むヘルスチェックに応答する。
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{
			"success": false,
			"message": "データベースに接続できません。",
			"status":  "unhealthy",
		})
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": "正常です。",
		"status":  "healthy",
	})
}

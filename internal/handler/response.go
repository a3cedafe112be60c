// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vipgate/internal/model"
)

// envelope は全エンドポイント共通のレスポンス形式。
// successとmessageを必ず含み、操作固有のフィールドを追加する。
type envelope map[string]any

// writeJSON はレスポンスボディをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeSuccess は成功レスポンスを書き込む。
// extraの各フィールドはエンベロープのトップレベルへ展開される。
func writeSuccess(w http.ResponseWriter, message string, extra envelope) {
	body := envelope{
		"success": true,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeServiceError はサービス層のエラーをレスポンスへ変換する。
//
// 業務上の失敗（検証エラー、重複、未登録、上限到達など）はプロトコル上の
// 異常ではないため、HTTP 200でsuccess:falseのエンベロープを返す。
// クライアントはHTTPステータスではなくsuccessとcodeで結果を判定する。
// systemカテゴリのみ500を返す。
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		// APIError以外のエラーは内部サーバーエラーとして扱う
		slog.Error("internal server error", slog.String("error", err.Error()))
		apiErr = model.NewSystemError("予期しないエラー")
	}

	statusCode := http.StatusOK
	if apiErr.Category == "system" {
		statusCode = http.StatusInternalServerError
	}

	writeJSON(w, statusCode, envelope{
		"success":  false,
		"message":  apiErr.Message,
		"code":     apiErr.Code,
		"category": apiErr.Category,
		"action":   apiErr.Action,
	})
}

// writeBadRequest はリクエストボディの解析失敗を400で返す。
func writeBadRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, envelope{
		"success":  false,
		"message":  "リクエストボディの解析に失敗しました。",
		"code":     model.ErrCodeInvalidRequest,
		"category": "validation",
		"action":   "正しいJSON形式でリクエストしてください。",
	})
}

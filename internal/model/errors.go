package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Categoryは障害の分類（validation, conflict, not_found, auth, capacity, system）で、
// system以外は正常系の業務結果としてクライアントへそのまま返す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeInvalidPassword    = "INVALID_PASSWORD"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeDeviceVerification = "DEVICE_VERIFICATION_REQUIRED"
	ErrCodeVerificationKey    = "VERIFICATION_KEY_MISMATCH"
	ErrCodeInvalidTier        = "INVALID_TIER"
	ErrCodeInvalidQuantity    = "INVALID_QUANTITY"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeKeyNotFound        = "KEY_NOT_FOUND"
	ErrCodeKeyAlreadyRedeemed = "KEY_ALREADY_REDEEMED"
	ErrCodeKeyFrozen          = "KEY_FROZEN"
	ErrCodeKeyConsumed        = "KEY_CONSUMED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeNotMember          = "NOT_MEMBER"
	ErrCodeInvalidUsageType   = "INVALID_USAGE_TYPE"
	ErrCodeQuotaExhausted     = "QUOTA_EXHAUSTED"
	ErrCodeSystem             = "SYSTEM_ERROR"
)

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "QQメールアドレスを使用してください（形式: 数字@qq.com、例: 123456789@qq.com）。",
		Category: "validation",
		Action:   "数字のみのユーザー名を持つQQメールアドレスを入力してください。",
	}
}

// NewInvalidPasswordError はパスワード形式エラーを生成する。
// reasonには満たさなかった規則の説明を渡す。
func NewInvalidPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  fmt.Sprintf("パスワードの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "8文字以上で、英字1文字以上と数字5文字以上を含めてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "conflict",
		Action:   "登録済みのアカウントでログインしてください。",
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
// ユーザー不在とパスワード誤りを区別しない統一メッセージを返す。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "ユーザーが存在しないかパスワードが誤っています。",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewDeviceVerificationError は新規デバイス検出エラーを生成する。
func NewDeviceVerificationError() *APIError {
	return &APIError{
		Code:     ErrCodeDeviceVerification,
		Message:  "新しいデバイスからのログインを検出しました。検証キーが必要です。",
		Category: "auth",
		Action:   "登録時に発行された6桁の検証キーを入力してください。",
	}
}

// NewVerificationKeyError は検証キー不一致エラーを生成する。
func NewVerificationKeyError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationKey,
		Message:  "検証キーが誤っています。",
		Category: "auth",
		Action:   "登録時に発行された検証キーを確認してください。",
	}
}

// NewInvalidTierError は無効な会員等級エラーを生成する。
func NewInvalidTierError(tier int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTier,
		Message:  fmt.Sprintf("無効な会員等級です: %d（有効な等級: 1-4）", tier),
		Category: "validation",
		Action:   "等級には1から4のいずれかを指定してください。",
	}
}

// NewInvalidQuantityError は無効な発行数量エラーを生成する。
func NewInvalidQuantityError(quantity int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuantity,
		Message:  fmt.Sprintf("無効な発行数量です: %d", quantity),
		Category: "validation",
		Action:   "数量には1以上を指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewKeyNotFoundError はカードキー未検出エラーを生成する。
func NewKeyNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeKeyNotFound,
		Message:  "カードキーが存在しません。入力内容を確認してください。",
		Category: "not_found",
		Action:   "カードキーを正しく入力してください。",
	}
}

// NewKeyAlreadyRedeemedError は有効化済みカードキーエラーを生成する。
// redeemedByには有効化したユーザーのメールアドレスを渡す。
func NewKeyAlreadyRedeemedError(redeemedBy string) *APIError {
	return &APIError{
		Code:     ErrCodeKeyAlreadyRedeemed,
		Message:  fmt.Sprintf("カードキーは既に有効化されています（有効化ユーザー: %s）。", redeemedBy),
		Category: "conflict",
		Action:   "未使用のカードキーを使用してください。",
	}
}

// NewKeyFrozenError は凍結済みカードキーエラーを生成する。
func NewKeyFrozenError() *APIError {
	return &APIError{
		Code:     ErrCodeKeyFrozen,
		Message:  "カードキーは凍結されています。",
		Category: "conflict",
		Action:   "サポートへお問い合わせください。",
	}
}

// NewKeyConsumedError は使用済みカードキーエラーを生成する。
func NewKeyConsumedError() *APIError {
	return &APIError{
		Code:     ErrCodeKeyConsumed,
		Message:  "カードキーは使用済みです。",
		Category: "conflict",
		Action:   "未使用のカードキーを使用してください。",
	}
}

// NewUserNotFoundError はユーザー未登録エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが存在しません。先に登録してください。",
		Category: "not_found",
		Action:   "アカウントを登録してから再度お試しください。",
	}
}

// NewNotMemberError は非会員エラーを生成する。
func NewNotMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeNotMember,
		Message:  "会員ではないか、会員の有効期限が切れています。",
		Category: "not_found",
		Action:   "カードキーを有効化して会員になってください。",
	}
}

// NewInvalidUsageTypeError は無効な利用種別エラーを生成する。
func NewInvalidUsageTypeError(usageType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUsageType,
		Message:  fmt.Sprintf("利用種別が不正です: %s", usageType),
		Category: "validation",
		Action:   "利用種別には lyrics または music を指定してください。",
	}
}

// NewQuotaExhaustedError は回数上限到達エラーを生成する。
func NewQuotaExhaustedError(usageType UsageType, limit int) *APIError {
	label := "歌詞生成"
	if usageType == UsageMusic {
		label = "音楽生成"
	}
	return &APIError{
		Code:     ErrCodeQuotaExhausted,
		Message:  fmt.Sprintf("%sの回数を使い切りました（上限%d回）。", label, limit),
		Category: "capacity",
		Action:   "カードキーを有効化して回数を追加してください。",
	}
}

// NewSystemError はストレージ等の予期しない障害エラーを生成する。
// このカテゴリのみ運用者向けにログへ記録される。
func NewSystemError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSystem,
		Message:  fmt.Sprintf("内部エラーが発生しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

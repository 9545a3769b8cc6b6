// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, station, accessory, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodePlateNumberTaken   = "PLATE_NUMBER_TAKEN"
	ErrCodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	ErrCodeEmptyMessage       = "EMPTY_MESSAGE"
	ErrCodeNotAuthorized      = "NOT_AUTHORIZED"
	ErrCodeAccessoryNotFound  = "ACCESSORY_NOT_FOUND"
	ErrCodeInvalidRating      = "INVALID_RATING"
	ErrCodeStationKeyMissing  = "STATION_KEY_MISSING"
	ErrCodeStationFetchFailed = "STATION_FETCH_FAILED"
	ErrCodeInvalidCoordinates = "INVALID_COORDINATES"
	ErrCodeInvalidImage       = "INVALID_IMAGE"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
)

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  fmt.Sprintf("このメールアドレスは既に使用されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを入力してください。",
	}
}

// NewPlateNumberTakenError はナンバープレート重複エラーを生成する。
func NewPlateNumberTakenError(plate string) *APIError {
	return &APIError{
		Code:     ErrCodePlateNumberTaken,
		Message:  fmt.Sprintf("このナンバープレートは既に登録されています: %s", plate),
		Category: "validation",
		Action:   "入力したナンバープレートを確認してください。",
	}
}

// NewMessageNotFoundError はメッセージ未検出エラーを生成する。
func NewMessageNotFoundError(messageID string) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("指定されたメッセージが見つかりません: %s", messageID),
		Category: "chat",
		Action:   "メッセージが既に削除されていないか確認してください。",
	}
}

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから送信してください。",
	}
}

// NewNotAuthorizedError は認可エラーを生成する。
// 他ユーザーのメッセージの編集・削除など、行は存在するが操作権限がない場合に使う。
// ゼロ行更新を成功扱いにしない（明示的な認可失敗として返す）。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分が送信したメッセージのみ編集・削除できます。",
	}
}

// NewAccessoryNotFoundError はアクセサリー未検出エラーを生成する。
func NewAccessoryNotFoundError(accessoryID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccessoryNotFound,
		Message:  fmt.Sprintf("指定されたアクセサリーが見つかりません: %s", accessoryID),
		Category: "accessory",
		Action:   "アクセサリー一覧を再読み込みしてください。",
	}
}

// NewInvalidRatingError は評価値が範囲外の場合のエラーを生成する。
func NewInvalidRatingError(rating int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("無効な評価値です: %d", rating),
		Category: "validation",
		Action:   "評価は1から5の整数で指定してください。",
	}
}

// NewStationKeyMissingError はOpenChargeMap APIキー未設定エラーを生成する。
// この機能のみ無効化され、アプリ全体は利用可能のまま。
func NewStationKeyMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeStationKeyMissing,
		Message:  "充電ステーション検索のAPIキーが設定されていません。",
		Category: "station",
		Action:   "管理者にOCM_API_KEYの設定を依頼してください。",
	}
}

// NewStationFetchFailedError はステーション情報取得失敗エラーを生成する。
func NewStationFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStationFetchFailed,
		Message:  fmt.Sprintf("充電ステーション情報の取得に失敗しました: %s", reason),
		Category: "station",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidCoordinatesError は座標・検索条件が不正な場合のエラーを生成する。
func NewInvalidCoordinatesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCoordinates,
		Message:  fmt.Sprintf("検索条件が不正です: %s", reason),
		Category: "validation",
		Action:   "緯度・経度・検索半径を確認してください。",
	}
}

// NewInvalidImageError は画像アップロード・取得の失敗エラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("画像の処理に失敗しました: %s", reason),
		Category: "validation",
		Action:   "対応形式（JPEG/PNG/WebP）の画像を指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

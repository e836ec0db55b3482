// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string              // エラーコード
	Message  string              // エラーメッセージ
	Category string              // カテゴリ: auth, validation, workflow, catalog, system
	Action   string              // ユーザー向け対処方法
	Fields   map[string][]string // フィールド単位のバリデーションエラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidDate         = "INVALID_DATE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	ErrCodeCSRFFailed          = "CSRF_FAILED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeDivisionNotFound    = "DIVISION_NOT_FOUND"
	ErrCodeVenueNotFound       = "VENUE_NOT_FOUND"
	ErrCodeRequestNotFound     = "REQUEST_NOT_FOUND"
	ErrCodeSongNotFound        = "SONG_NOT_FOUND"
	ErrCodeRatingNotFound      = "RATING_NOT_FOUND"
	ErrCodePerformanceNotFound = "PERFORMANCE_NOT_FOUND"
	ErrCodeActivityNotFound    = "ACTIVITY_NOT_FOUND"
	ErrCodeFeedbackNotFound    = "FEEDBACK_NOT_FOUND"
	ErrCodeAttendanceNotFound  = "ATTENDANCE_NOT_FOUND"
	ErrCodeAbsentNotFound      = "ABSENT_NOT_FOUND"
	ErrCodeDuplicateUsername   = "DUPLICATE_USERNAME"
	ErrCodeDuplicateRequest    = "DUPLICATE_REQUEST"
	ErrCodeDuplicateDivision   = "DUPLICATE_DIVISION"
	ErrCodeTransitionRejected  = "TRANSITION_NOT_ALLOWED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError はフィールド単位のバリデーションエラーを生成する。
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Invalid input.",
		Category: "validation",
		Action:   "Correct the highlighted fields and try again.",
		Fields:   fields,
	}
}

// NewFieldError は単一フィールドのバリデーションエラーを生成する。
func NewFieldError(field, message string) *APIError {
	return NewValidationError(map[string][]string{field: {message}})
}

// NewUnknownDivisionRefError は所属部門として指定されたIDが存在しない場合のエラーを生成する。
func NewUnknownDivisionRefError(id string) *APIError {
	return NewFieldError("divisions", fmt.Sprintf("Invalid pk %q - object does not exist.", id))
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "Check the request body and parameters.",
	}
}

// NewInvalidDateError は日付形式エラーを生成する。
func NewInvalidDateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  "Invalid date format. Use YYYY-MM-DD.",
		Category: "validation",
		Action:   "Send dates as YYYY-MM-DD.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication credentials were not provided.",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Unable to authenticate with provided credentials.",
		Category: "auth",
		Action:   "Check the username and password.",
	}
}

// NewInvalidRefreshTokenError はリフレッシュトークン無効エラーを生成する。
// 失効・期限切れ・改ざんを区別しない。
func NewInvalidRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRefreshToken,
		Message:  "Refresh token is invalid or expired.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewCSRFFailedError はCSRF検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF Failed: CSRF token missing or incorrect.",
		Category: "auth",
		Action:   "Fetch a CSRF token and send it in the X-CSRFToken header.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action.",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "catalog",
		Action:   "Check the user ID or username.",
	}
}

// NewDivisionNotFoundError は部門が見つからない場合のエラーを生成する。
func NewDivisionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeDivisionNotFound,
		Message:  "Division not found.",
		Category: "catalog",
		Action:   "Check the division ID.",
	}
}

// NewVenueNotFoundError は開催予定が見つからない場合のエラーを生成する。
func NewVenueNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeVenueNotFound,
		Message:  "Venue not found.",
		Category: "catalog",
		Action:   "Check the venue ID.",
	}
}

// NewRequestNotFoundError は出欠申請が見つからない場合のエラーを生成する。
func NewRequestNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestNotFound,
		Message:  "Pending request not found.",
		Category: "workflow",
		Action:   "Create the venue for this division first.",
	}
}

// NewNotFoundError はカタログ系リソースの未検出エラーを生成する。
func NewNotFoundError(code, resource string) *APIError {
	return &APIError{
		Code:     code,
		Message:  fmt.Sprintf("%s not found.", resource),
		Category: "catalog",
		Action:   "Check the ID.",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError() *APIError {
	e := NewFieldError("username", "A user with that username already exists.")
	e.Code = ErrCodeDuplicateUsername
	return e
}

// NewDuplicateRequestError は同一 (部門, 開催予定) の申請が既に存在する場合のエラーを生成する。
func NewDuplicateRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRequest,
		Message:  "A request for this division and venue already exists.",
		Category: "workflow",
		Action:   "Update the existing request instead.",
	}
}

// NewDuplicateDivisionError は name と role の組が重複する場合のエラーを生成する。
func NewDuplicateDivisionError() *APIError {
	e := NewFieldError("name", "Division with this name and role already exists.")
	e.Code = ErrCodeDuplicateDivision
	return e
}

// NewTransitionRejectedError は現在の状態から遷移できない場合のエラーを生成する。
func NewTransitionRejectedError(state RequestState) *APIError {
	return &APIError{
		Code:     ErrCodeTransitionRejected,
		Message:  fmt.Sprintf("Request cannot be processed from state %q.", state),
		Category: "workflow",
		Action:   "Reset the request to start a new cycle.",
	}
}

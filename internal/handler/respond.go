// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/model"
)

// detailResponse は {"detail": "..."} 形式のメッセージレスポンス。
type detailResponse struct {
	Detail string `json:"detail"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディを dst にデコードする。空のボディは許容する。
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return model.NewInvalidRequestError("Malformed JSON request body.")
	}
	return nil
}

// decodeAndValidate はデコードと検証をまとめて行い、失敗時はエラーレスポンスを書き込む。
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		handleServiceError(w, err)
		return false
	}
	if err := validateRequest(dst); err != nil {
		handleServiceError(w, err)
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest, model.ErrCodeInvalidDate,
		model.ErrCodeInvalidCredentials,
		model.ErrCodeDuplicateUsername, model.ErrCodeDuplicateRequest, model.ErrCodeDuplicateDivision:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidRefreshToken:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFFailed, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeTransitionRejected:
		return http.StatusConflict
	}
	if strings.HasSuffix(apiErr.Code, "_NOT_FOUND") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// principal はルートガードを通過したリクエストの認証主体を返す。
func principal(r *http.Request) model.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

// optionalPrincipal は匿名アクセス可能なルートで認証主体を返す。匿名ならnil。
func optionalPrincipal(r *http.Request) *model.Principal {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	return &p
}

// queryBool はクエリパラメータを真偽値として解釈する。
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// nonNil はnilスライスを空スライスに置き換える。JSONで null ではなく [] を返すため。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

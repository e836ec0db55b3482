package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/model"
)

// --- テストヘルパー ---

var (
	adminPrincipal  = model.Principal{UserID: "admin-1", Username: "admin", IsAdmin: true}
	memberPrincipal = model.Principal{UserID: "user-1", Username: "member"}
)

func withPrincipal(r *http.Request, p model.Principal) *http.Request {
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

// withURLParams はchiのURLパラメータを設定する。
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

// --- テスト ---

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewFieldError("username", "required"), http.StatusBadRequest},
		{model.NewInvalidDateError(), http.StatusBadRequest},
		{model.NewInvalidCredentialsError(), http.StatusBadRequest},
		{model.NewDuplicateRequestError(), http.StatusBadRequest},
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewInvalidRefreshTokenError(), http.StatusUnauthorized},
		{model.NewCSRFFailedError(), http.StatusForbidden},
		{model.NewForbiddenError(), http.StatusForbidden},
		{model.NewTransitionRejectedError(model.StateAccepted), http.StatusConflict},
		{model.NewVenueNotFoundError(), http.StatusNotFound},
		{model.NewNotFoundError(model.ErrCodeSongNotFound, "Song"), http.StatusNotFound},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, fmt.Errorf("部門の取得に失敗しました: %w", model.NewDivisionNotFoundError()))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeDivisionNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeDivisionNotFound)
	}
}

func TestHandleServiceError_UnknownErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Message == "pq: connection refused" {
		t.Error("internal error detail must not leak to the client")
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("空のボディは許容する", func(t *testing.T) {
		var dst struct{ Name string }
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		if err := decodeJSON(req, &dst); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("不正なJSONはINVALID_REQUEST", func(t *testing.T) {
		var dst struct{ Name string }
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{broken"))
		err := decodeJSON(req, &dst)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
			t.Errorf("err = %v, want INVALID_REQUEST", err)
		}
	})
}

func TestValidateRequest_FieldNamesUseJSONKeys(t *testing.T) {
	err := validateRequest(&signupRequest{Username: "bad name!", Password: "abc"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
	if _, ok := apiErr.Fields["username"]; !ok {
		t.Errorf("fields = %v, want username key", apiErr.Fields)
	}
	if msgs := apiErr.Fields["password"]; len(msgs) != 1 || msgs[0] != "Ensure this field has at least 4 characters." {
		t.Errorf("password messages = %v", msgs)
	}
}

func TestValidateRequest_SliceElementErrorsUseParentKey(t *testing.T) {
	err := validateRequest(&createUserRequest{
		Username:  "carol",
		Password:  "secret",
		Divisions: []string{"x", "y"},
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if msgs := apiErr.Fields["divisions"]; len(msgs) != 2 {
		t.Errorf("divisions messages = %v, want 2", msgs)
	}
	for key := range apiErr.Fields {
		if key != "divisions" {
			t.Errorf("unexpected field key %q", key)
		}
	}
}

func TestQueryBool(t *testing.T) {
	tests := map[string]bool{
		"/?upcoming=true":  true,
		"/?upcoming=1":     true,
		"/?upcoming=false": false,
		"/?upcoming=yes":   false,
		"/":                false,
	}
	for target, want := range tests {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if got := queryBool(req, "upcoming"); got != want {
			t.Errorf("queryBool(%q) = %v, want %v", target, got, want)
		}
	}
}

func jsonDecode(w *httptest.ResponseRecorder, dst any) error {
	return json.NewDecoder(w.Body).Decode(dst)
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/noxshop/internal/model"
)

// --- モック定義 ---

type mockTokenVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*model.Principal, error)
	calls    int
}

func (m *mockTokenVerifier) Verify(ctx context.Context, idToken string) (*model.Principal, error) {
	m.calls++
	return m.verifyFn(ctx, idToken)
}

type mockVerificationRecorder struct {
	results []bool
}

func (m *mockVerificationRecorder) RecordTokenVerification(ok bool) {
	m.results = append(m.results, ok)
}

type mockAccountFinder struct {
	findFn func(ctx context.Context, uid string) (*model.Account, error)
}

func (m *mockAccountFinder) FindByUID(ctx context.Context, uid string) (*model.Account, error) {
	return m.findFn(ctx, uid)
}

func validVerifier() *mockTokenVerifier {
	return &mockTokenVerifier{
		verifyFn: func(_ context.Context, idToken string) (*model.Principal, error) {
			if idToken == "good-token" {
				return &model.Principal{UserID: "uid-1", Email: "a@example.com"}, nil
			}
			return nil, errors.New("token expired")
		},
	}
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- NewAuthMiddleware ---

func TestAuthMiddleware_ValidToken_InjectsPrincipal(t *testing.T) {
	verifier := validVerifier()
	rec := &mockVerificationRecorder{}

	var got *model.Principal
	handler := NewAuthMiddleware(verifier, rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/purchases", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got == nil || got.UserID != "uid-1" || got.Email != "a@example.com" {
		t.Errorf("principal = %+v", got)
	}
	if len(rec.results) != 1 || !rec.results[0] {
		t.Errorf("recorded = %v, want [true]", rec.results)
	}
}

func TestAuthMiddleware_NoHeader_PassesThroughAnonymously(t *testing.T) {
	for _, header := range []string{"", "Basic dXNlcjpwYXNz"} {
		verifier := validVerifier()
		called := false
		handler := NewAuthMiddleware(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			if _, ok := PrincipalFromContext(r.Context()); ok {
				t.Error("anonymous request must not carry a principal")
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if !called || w.Code != http.StatusOK {
			t.Errorf("header %q: called=%v status=%d", header, called, w.Code)
		}
		if verifier.calls != 0 {
			t.Errorf("header %q: verifier called %d times", header, verifier.calls)
		}
	}
}

func TestAuthMiddleware_InvalidToken_Returns401AndHalts(t *testing.T) {
	for _, header := range []string{"Bearer expired-token", "Bearer ", "Bearer"} {
		t.Run(header, func(t *testing.T) {
			rec := &mockVerificationRecorder{}
			handler := NewAuthMiddleware(validVerifier(), rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if body := decodeErrorBody(t, w); body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
			if len(rec.results) != 1 || rec.results[0] {
				t.Errorf("recorded = %v, want [false]", rec.results)
			}
		})
	}
}

// --- RequireAuth ---

func TestRequireAuth(t *testing.T) {
	handler := RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("匿名は401", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/buy?productId=1", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("認証済みは通過", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/buy?productId=1", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "uid-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// --- NewAdminMiddleware ---

func TestAdminMiddleware(t *testing.T) {
	finder := &mockAccountFinder{
		findFn: func(_ context.Context, uid string) (*model.Account, error) {
			switch uid {
			case "admin":
				return &model.Account{UID: uid, Roles: []string{model.RoleUser, model.RoleAdmin}}, nil
			case "user":
				return &model.Account{UID: uid, Roles: model.DefaultRoles()}, nil
			case "broken":
				return nil, errors.New("db down")
			}
			return nil, nil
		},
	}

	tests := []struct {
		name       string
		uid        string
		wantStatus int
	}{
		{"管理者", "admin", http.StatusOK},
		{"一般ユーザー", "user", http.StatusForbidden},
		{"アカウント未作成", "stranger", http.StatusForbidden},
		{"検索エラー", "broken", http.StatusInternalServerError},
		{"匿名", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAdminMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/user-spend", nil)
			if tt.uid != "" {
				req = req.WithContext(ContextWithUserID(req.Context(), tt.uid))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- context helpers ---

func TestUserIDFromContext_Empty_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	if _, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), &model.Principal{})); ok {
		t.Error("principal without user id must not be reported")
	}
}

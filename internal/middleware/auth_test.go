package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
)

// fakeVerifier accepts the tokens in its map and rejects everything else
type fakeVerifier struct {
	tokens map[string]*auth.Token
}

func (f fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if tok, ok := f.tokens[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("token expired")
}

func newVerifier() fakeVerifier {
	return fakeVerifier{tokens: map[string]*auth.Token{
		"contadora": {UID: "uid-ana", Claims: map[string]interface{}{"email": "ana@escritorio.com.br"}},
		"sem-email": {UID: "uid-bruno", Claims: map[string]interface{}{}},
		"email-num": {UID: "uid-carla", Claims: map[string]interface{}{"email": 42}},
	}}
}

func serve(t *testing.T, header string, next http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/periods", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	NewAuthMiddleware(newVerifier()).RequireAuth(next).ServeHTTP(w, req)
	return w
}

func TestRequireAuth_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"no header", "", "Missing authorization header"},
		{"no scheme", "contadora", "Invalid authorization header format"},
		{"basic scheme", "Basic contadora", "Invalid authorization header format"},
		{"lowercase scheme", "bearer contadora", "Invalid authorization header format"},
		{"empty token", "Bearer ", "Invalid authorization header format"},
		{"extra parts", "Bearer contadora extra", "Invalid authorization header format"},
		{"unknown token", "Bearer forjado", "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, tt.header, func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run for a rejected request")
			})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestRequireAuth_StoresCaller(t *testing.T) {
	tests := []struct {
		token string
		want  AuthInfo
	}{
		{"contadora", AuthInfo{UserID: "uid-ana", Email: "ana@escritorio.com.br"}},
		{"sem-email", AuthInfo{UserID: "uid-bruno"}},
		{"email-num", AuthInfo{UserID: "uid-carla"}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			var got AuthInfo
			w := serve(t, "Bearer "+tt.token, func(w http.ResponseWriter, r *http.Request) {
				userID, ok := GetUserID(r.Context())
				require.True(t, ok)
				assert.Equal(t, tt.want.UserID, userID)

				got, ok = GetAuth(r)
				require.True(t, ok)
				w.WriteHeader(http.StatusNoContent)
			})
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireAuth_ConcurrentCallersStayApart(t *testing.T) {
	mw := NewAuthMiddleware(newVerifier())
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserID(r.Context())
		w.Write([]byte(userID))
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		token, want := "contadora", "uid-ana"
		if i%2 == 1 {
			token, want = "sem-email", "uid-bruno"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, want, w.Body.String())
		}()
	}
	wg.Wait()
}

func TestRequireAuth_LoggerCarriesUser(t *testing.T) {
	var buf bytes.Buffer
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info().Msg("inside")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("Authorization", "Bearer sem-email")
	req = req.WithContext(logger.WithContext(req.Context(), logger.NewWithWriter(&buf)))

	NewAuthMiddleware(newVerifier()).RequireAuth(handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"user_id":"uid-bruno"`)
}

func TestContextHelpers(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthInfo{UserID: "u1", Email: "u1@example.com"})

	userID, ok := GetUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", userID)

	_, ok = GetUserID(context.Background())
	assert.False(t, ok)
	_, ok = GetUserID(WithAuth(context.Background(), AuthInfo{}))
	assert.False(t, ok, "an empty user id is not authenticated")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok = GetAuth(req)
	assert.False(t, ok)

	req = req.WithContext(context.WithValue(req.Context(), AuthKey, "not-auth-info"))
	_, ok = GetAuth(req)
	assert.False(t, ok, "wrong value type is ignored")
}

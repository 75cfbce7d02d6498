package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestGenerateAndRequireDebugAuth(t *testing.T) {
	secret := testSecret()
	token, _, err := GenerateDebugToken(secret, "alice")
	if err != nil {
		t.Fatalf("GenerateDebugToken() error: %v", err)
	}

	var gotOperator string
	handler := RequireDebugAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperator = OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotOperator != "alice" {
		t.Fatalf("expected operator alice, got %q", gotOperator)
	}
}

func TestRequireDebugAuthMissingHeader(t *testing.T) {
	handler := RequireDebugAuth(testSecret())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireDebugAuthMalformedHeader(t *testing.T) {
	handler := RequireDebugAuth(testSecret())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireDebugAuthWrongSecret(t *testing.T) {
	token, _, err := GenerateDebugToken(testSecret(), "alice")
	if err != nil {
		t.Fatalf("GenerateDebugToken() error: %v", err)
	}

	handler := RequireDebugAuth([]byte("different-secret-abcdefghijklmno"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOperatorFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if op := OperatorFromContext(req.Context()); op != "" {
		t.Fatalf("expected empty operator, got %q", op)
	}
}

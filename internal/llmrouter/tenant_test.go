package llmrouter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyTenantRoundTrip(t *testing.T) {
	v := NewTenantVerifier("test-signing-key", "resilientd")

	token, err := v.IssueTenantToken("acme", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	tenant, err := v.VerifyTenant(token)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if tenant != "acme" {
		t.Errorf("expected tenant acme, got %q", tenant)
	}
}

func TestVerifyTenantRejectsExpiredToken(t *testing.T) {
	v := NewTenantVerifier("test-signing-key", "resilientd")

	token, err := v.IssueTenantToken("acme", -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	if _, err := v.VerifyTenant(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestVerifyTenantRejectsWrongIssuer(t *testing.T) {
	issuer := NewTenantVerifier("shared-key", "resilientd")
	other := NewTenantVerifier("shared-key", "someone-else")

	token, err := other.IssueTenantToken("acme", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	if _, err := issuer.VerifyTenant(token); err == nil {
		t.Error("expected token from a different issuer to be rejected")
	}
}

func TestVerifyTenantRejectsWrongSigningKey(t *testing.T) {
	signer := NewTenantVerifier("key-a", "resilientd")
	verifier := NewTenantVerifier("key-b", "resilientd")

	token, err := signer.IssueTenantToken("acme", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	if _, err := verifier.VerifyTenant(token); err == nil {
		t.Error("expected token signed with a different key to be rejected")
	}
}

func TestExtractBearerTokenRejectsMalformedHeader(t *testing.T) {
	cases := []string{"", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz", "bearer abc"}
	for _, header := range cases {
		if _, err := ExtractBearerToken(header); err == nil {
			t.Errorf("expected header %q to be rejected", header)
		}
	}
}

func TestRequireTenantPassesTenantThrough(t *testing.T) {
	v := NewTenantVerifier("test-signing-key", "resilientd")
	token, err := v.IssueTenantToken("acme", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	var gotTenant string
	handler := RequireTenant(v, func(w http.ResponseWriter, r *http.Request, tenant string) {
		gotTenant = tenant
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/resilience/llm/generate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotTenant != "acme" {
		t.Errorf("expected tenant acme, got %q", gotTenant)
	}
}

func TestRequireTenantRejectsMissingAuthorization(t *testing.T) {
	v := NewTenantVerifier("test-signing-key", "resilientd")
	called := false
	handler := RequireTenant(v, func(w http.ResponseWriter, r *http.Request, tenant string) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/resilience/llm/generate", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("expected wrapped handler not to run")
	}
}

package oauthflow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPKCEChallenge(t *testing.T) {
	pkce := NewPKCE()
	if pkce.Verifier == "" || pkce.Challenge == "" {
		t.Fatal("empty PKCE pair")
	}
	sum := sha256.Sum256([]byte(pkce.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if pkce.Challenge != want {
		t.Errorf("Challenge = %q, want S256 of verifier", pkce.Challenge)
	}
}

func TestNewStateUnique(t *testing.T) {
	if NewState() == NewState() {
		t.Error("NewState() returned duplicate values")
	}
}

func TestPostToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    7200,
		})
	}))
	defer srv.Close()

	tok, err := PostToken(context.Background(), srv.URL, map[string]string{
		"grant_type": "authorization_code",
		"code":       "abc",
	})
	if err != nil {
		t.Fatalf("PostToken() error = %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("tokens = %q/%q", tok.AccessToken, tok.RefreshToken)
	}

	wantMin := time.Now().Add(7100 * time.Second).UnixMilli()
	if got := tok.ExpiresAtMillis(); got < wantMin {
		t.Errorf("ExpiresAtMillis() = %d, want >= %d", got, wantMin)
	}
}

func TestPostTokenErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	_, err := PostToken(context.Background(), srv.URL, map[string]string{"code": "x"})
	if err == nil || !strings.Contains(err.Error(), "code expired") {
		t.Errorf("error = %v, want rejection with description", err)
	}
}

func TestLoopbackCallback(t *testing.T) {
	lb, err := StartLoopback("state-1")
	if err != nil {
		t.Fatalf("StartLoopback() error = %v", err)
	}
	defer lb.Close()

	resp, err := http.Get(lb.RedirectURI() + "?code=auth-code&state=state-1")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, err := lb.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if code != "auth-code" {
		t.Errorf("code = %q", code)
	}
}

func TestLoopbackStateMismatch(t *testing.T) {
	lb, err := StartLoopback("expected")
	if err != nil {
		t.Fatalf("StartLoopback() error = %v", err)
	}
	defer lb.Close()

	resp, err := http.Get(lb.RedirectURI() + "?code=auth-code&state=attacker")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := lb.Wait(ctx); err == nil {
		t.Error("expected error for state mismatch")
	}
}

func TestDeviceFlow(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/device":
			json.NewEncoder(w).Encode(map[string]any{
				"device_code":      "dev-1",
				"user_code":        "ABCD1234",
				"verification_uri": "https://github.com/login/device",
				"interval":         1,
			})
		case "/token":
			polls++
			if polls < 3 {
				json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"access_token": "gh-token"})
		}
	}))
	defer srv.Close()

	cfg := DeviceConfig{
		DeviceCodeURL:    srv.URL + "/device",
		DeviceCodeParams: map[string]string{"client_id": "cid"},
		TokenURL:         srv.URL + "/token",
		TokenParams:      map[string]string{"client_id": "cid"},
		FormatCode: func(code string) string {
			return code[:4] + "-" + code[4:]
		},
	}

	dc, err := RequestDeviceCode(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RequestDeviceCode() error = %v", err)
	}
	if dc.UserCode != "ABCD-1234" {
		t.Errorf("UserCode = %q, want formatted", dc.UserCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := PollForToken(ctx, cfg, dc)
	if err != nil {
		t.Fatalf("PollForToken() error = %v", err)
	}
	if tok.AccessToken != "gh-token" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
}

func TestDeviceFlowDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "access_denied"})
	}))
	defer srv.Close()

	cfg := DeviceConfig{TokenURL: srv.URL}
	dc := &DeviceCode{deviceCode: "dev-1"}
	if _, err := PollForToken(context.Background(), cfg, dc); err == nil {
		t.Error("expected error for access_denied")
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"env_automation/internal/repository"
	"env_automation/internal/service"
)

func postJSON(t *testing.T, auth *mockAuth, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := newTestRouter(&service.Service{Authorization: auth})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	return w, m
}

func TestAuthHandlers(t *testing.T) {
	const creds = `{"username":"grower","password":"correct horse"}`
	cases := []struct {
		name     string
		auth     *mockAuth
		path     string
		body     string
		wantCode int
		wantKey  string
		wantVal  any
	}{
		{"sign_up", &mockAuth{signUpID: 42}, "/auth/sign-up", creds, http.StatusOK, "id", float64(42)},
		{"sign_up_weak_password", &mockAuth{signUpErr: service.ErrWeakPassword}, "/auth/sign-up", creds, http.StatusBadRequest, "error", service.ErrWeakPassword.Error()},
		{"sign_up_duplicate", &mockAuth{signUpErr: fmt.Errorf("insert user %q: %w", "grower", repository.ErrUsernameTaken)}, "/auth/sign-up", creds, http.StatusConflict, "", nil},
		{"sign_up_missing_password", &mockAuth{}, "/auth/sign-up", `{"username":"grower"}`, http.StatusBadRequest, "", nil},
		{"sign_in", &mockAuth{genTokenToken: "tok123"}, "/auth/sign-in", creds, http.StatusOK, "token", "tok123"},
		{"sign_in_wrong_password", &mockAuth{genTokenErr: errors.New("bad password")}, "/auth/sign-in", creds, http.StatusUnauthorized, "error", "invalid credentials"},
		{"sign_in_bad_body", &mockAuth{}, "/auth/sign-in", `{"username":1}`, http.StatusBadRequest, "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, m := postJSON(t, tc.auth, tc.path, tc.body)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			if tc.wantKey != "" && m[tc.wantKey] != tc.wantVal {
				t.Fatalf("%s = %v, want %v", tc.wantKey, m[tc.wantKey], tc.wantVal)
			}
		})
	}
}

func TestAuthHandlers_ForwardCredentials(t *testing.T) {
	auth := &mockAuth{signUpID: 1, genTokenToken: "t"}
	body := `{"username":"grower","password":"correct horse"}`

	postJSON(t, auth, "/auth/sign-up", body)
	postJSON(t, auth, "/auth/sign-in", body)
	if auth.lastSignUpUsername != "grower" || auth.lastSignUpPassword != "correct horse" {
		t.Fatalf("sign-up got %q/%q", auth.lastSignUpUsername, auth.lastSignUpPassword)
	}
	if auth.lastGenUsername != "grower" || auth.lastGenPassword != "correct horse" {
		t.Fatalf("sign-in got %q/%q", auth.lastGenUsername, auth.lastGenPassword)
	}
}

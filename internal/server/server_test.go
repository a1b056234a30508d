package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/electio/votegate/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSender captures issued passcodes instead of delivering them
type fakeSender struct {
	codes []string
}

func (f *fakeSender) SendCode(ctx context.Context, channel, destination, code string) error {
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.codes) == 0 {
		return ""
	}
	return f.codes[len(f.codes)-1]
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "development",
		LogLevel:          "error",
		LogFormat:         "text",
		JWTSecret:         "test-secret-test-secret-test-secret!",
		SessionTTL:        time.Hour,
		OTPLength:         4,
		OTPTTL:            10 * time.Minute,
		OTPSupersedeGrace: 2 * time.Minute,
		LockoutThreshold:  5,
		LockoutDuration:   30 * time.Minute,
		RiskLowThreshold:  0.3,
		RiskHighThreshold: 0.6,
		FirstVoteCap:      0.2,
		VoteSealKey:       strings.Repeat("ab", 32),
		ScanInterval:      time.Hour,
		ScanMinEntries:    10,
		ScanContamination: 0.05,
		AdminSecret:       "test-admin-secret",
	}
}

// newTestServer creates a server with in-memory stores and a captured sender
func newTestServer(t *testing.T) (*Server, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	s, err := New(testConfig(), WithSender(sender))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s, sender
}

func doJSON(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(s, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(s, "GET", "/health/live", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(s, "GET", "/health/ready", "", nil)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s, _ := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/v1/auth/register",
		"POST:/v1/auth/login",
		"POST:/v1/auth/verify",
		"POST:/v1/auth/resend",
		"POST:/v1/votes",
		"GET:/v1/votes/status",
		"POST:/v1/identity/check",
		"POST:/v1/admin/anomaly/scan",
		"GET:/v1/admin/anomaly/scans",
		"GET:/v1/admin/anomaly/flagged",
		"GET:/v1/admin/assessments",
		"GET:/v1/admin/votes/flagged",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end flow: register, login, verify, cast a vote
// ---------------------------------------------------------------------------

func TestRegisterLoginVoteFlow(t *testing.T) {
	s, sender := newTestServer(t)

	w := doJSON(s, "POST", "/v1/auth/register",
		`{"email":"ada@example.com","password":"hunter2hunter2","birthDate":"1990-05-10"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, "POST", "/v1/auth/login",
		`{"email":"ada@example.com","password":"hunter2hunter2"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	code := sender.last()
	if code == "" {
		t.Fatal("login should have delivered a passcode")
	}

	w = doJSON(s, "POST", "/v1/auth/verify",
		`{"email":"ada@example.com","code":"`+code+`"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var verifyResp struct {
		Session struct {
			Token string `json:"token"`
		} `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &verifyResp); err != nil {
		t.Fatalf("Failed to parse verify response: %v", err)
	}
	if verifyResp.Session.Token == "" {
		t.Fatal("verify should return a session token")
	}

	authHeader := map[string]string{"Authorization": "Bearer " + verifyResp.Session.Token}
	w = doJSON(s, "POST", "/v1/votes",
		`{"electionId":"election-2026","choice":"candidate-7","sessionDuration":120,"pageViews":5,"timeOnPage":90}`,
		authHeader)
	if w.Code != http.StatusCreated {
		t.Fatalf("cast: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Second vote in the same election is a policy rejection
	w = doJSON(s, "POST", "/v1/votes",
		`{"electionId":"election-2026","choice":"candidate-7","sessionDuration":120,"pageViews":5,"timeOnPage":90}`,
		authHeader)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate cast: expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVoteRequiresVerifiedIdentityWhenEnabled(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig()
	cfg.RequireIdentity = true
	s, err := New(cfg, WithSender(sender))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w := doJSON(s, "POST", "/v1/auth/register",
		`{"email":"ida@example.com","password":"hunter2hunter2","birthDate":"1988-02-14"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(s, "POST", "/v1/auth/login",
		`{"email":"ida@example.com","password":"hunter2hunter2"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(s, "POST", "/v1/auth/verify",
		`{"email":"ida@example.com","code":"`+sender.last()+`"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var verifyResp struct {
		Session struct {
			Token string `json:"token"`
		} `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &verifyResp); err != nil {
		t.Fatalf("Failed to parse verify response: %v", err)
	}
	authHeader := map[string]string{"Authorization": "Bearer " + verifyResp.Session.Token}

	// Without a passed identity check the ballot is rejected outright.
	w = doJSON(s, "POST", "/v1/votes",
		`{"electionId":"election-2026","choice":"candidate-3"}`, authHeader)
	if w.Code != http.StatusForbidden {
		t.Fatalf("unverified cast: expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var errResp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if errResp["error"] != "identity_unverified" {
		t.Errorf("Expected identity_unverified, got %v", errResp["error"])
	}

	w = doJSON(s, "POST", "/v1/identity/check",
		`{"verified":true,"faceDistance":0.31,"verificationTime":4.2}`, authHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("identity check: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, "POST", "/v1/votes",
		`{"electionId":"election-2026","choice":"candidate-3"}`, authHeader)
	if w.Code != http.StatusCreated {
		t.Fatalf("verified cast: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVoteRequiresSession(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(s, "POST", "/v1/votes",
		`{"electionId":"election-2026","choice":"candidate-7"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Admin access tests
// ---------------------------------------------------------------------------

func TestAdminRoutesRejectVoters(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(s, "GET", "/v1/admin/assessments", "", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without credentials, got %d", w.Code)
	}
}

func TestAdminSecretHeaderAccepted(t *testing.T) {
	s, _ := newTestServer(t)

	headers := map[string]string{"X-Admin-Secret": "test-admin-secret"}
	w := doJSON(s, "GET", "/v1/admin/anomaly/scans", "", headers)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with admin secret, got %d: %s", w.Code, w.Body.String())
	}

	headers = map[string]string{"X-Admin-Secret": "wrong"}
	w = doJSON(s, "GET", "/v1/admin/anomaly/scans", "", headers)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong secret, got %d", w.Code)
	}
}

func TestAdminScanTrigger(t *testing.T) {
	s, _ := newTestServer(t)

	headers := map[string]string{"X-Admin-Secret": "test-admin-secret"}
	w := doJSON(s, "POST", "/v1/admin/anomaly/scan", "", headers)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Scan struct {
			Result string `json:"result"`
		} `json:"scan"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Scan.Result != "insufficient_data" {
		t.Errorf("Empty log should yield insufficient_data, got %q", resp.Scan.Result)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(s, "GET", "/v1/nonexistent", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

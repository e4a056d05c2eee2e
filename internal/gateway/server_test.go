package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tollgate/tollgate/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{
			Address:        ":0",
			GRPCAddress:    ":0",
			MaxRequestSize: 1024,
			MaxGRPCConns:   4,
			Mode:           "fast",
			APIKeys:        []string{"test-key"},
			PrivilegedKeys: []string{"root-key"},
		},
		Quota: config.QuotaConfig{
			MaxTxPerWindow:    2,
			MaxBytesPerWindow: 100,
			WindowEpochs:      5,
			// Long epochs keep the whole test inside one window.
			EpochLength: time.Hour,
		},
		Observability: config.ObservabilityConfig{
			MetricsEnabled: false,
			TracingEnabled: false,
			ServiceVersion: "test",
		},
	}

	s, err := NewServer(cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func submit(s *Server, apiKey, account, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if account != "" {
		req.Header.Set("X-Account-ID", account)
	}
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestSubmitRequiresAPIKey(t *testing.T) {
	s := newTestServer(t)
	if w := submit(s, "", "alice", "x"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w := submit(s, "wrong-key", "alice", "x"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSubmitRequiresAccount(t *testing.T) {
	s := newTestServer(t)
	if w := submit(s, "test-key", "", "x"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubmitAdmitsAndRejects(t *testing.T) {
	s := newTestServer(t)

	w := submit(s, "test-key", "alice", "hello")
	if w.Code != http.StatusAccepted {
		t.Fatalf("first submit: status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Quota-Remaining"); got != "1" {
		t.Errorf("X-Quota-Remaining = %q, want 1", got)
	}

	if w = submit(s, "test-key", "alice", "hello"); w.Code != http.StatusAccepted {
		t.Fatalf("second submit: status = %d", w.Code)
	}

	// Third transaction in the same window exceeds MaxTxPerWindow=2.
	w = submit(s, "test-key", "alice", "hello")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third submit: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
	var resp struct {
		Admitted bool `json:"admitted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Admitted {
		t.Errorf("body should report admitted=false: %s (%v)", w.Body.String(), err)
	}

	// Other accounts are unaffected.
	if w = submit(s, "test-key", "bob", "hello"); w.Code != http.StatusAccepted {
		t.Errorf("bob's submit: status = %d, want 202", w.Code)
	}
}

func TestSubmitRejectsOversizedTransaction(t *testing.T) {
	s := newTestServer(t)

	// 100 bytes is not strictly below the 100-byte window ceiling.
	w := submit(s, "test-key", "alice", strings.Repeat("a", 100))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("oversized submit: status = %d, want 429", w.Code)
	}

	if w = submit(s, "test-key", "alice", strings.Repeat("a", 99)); w.Code != http.StatusAccepted {
		t.Errorf("99-byte submit: status = %d, want 202", w.Code)
	}
}

func TestPrivilegedKeyBypassesQuota(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 10; i++ {
		w := submit(s, "root-key", "", strings.Repeat("a", 500))
		if w.Code != http.StatusAccepted {
			t.Fatalf("privileged submit %d: status = %d", i, w.Code)
		}
		if w.Header().Get("X-Quota-Remaining") != "" {
			t.Error("anonymous path should not carry quota headers")
		}
	}
}

func TestQuotaEndpoint(t *testing.T) {
	s := newTestServer(t)

	submit(s, "test-key", "alice", "hello")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota/alice", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		TxCount   uint32 `json:"tx_count"`
		Bytes     uint32 `json:"bytes"`
		Remaining uint32 `json:"remaining"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body %s: %v", w.Body.String(), err)
	}
	if resp.TxCount != 1 || resp.Bytes != 5 || resp.Remaining != 1 || resp.Status != "limited" {
		t.Errorf("unexpected quota snapshot: %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/refdata/validate-service/internal/domain"
	"github.com/refdata/validate-service/internal/engine"
	"github.com/refdata/validate-service/internal/ruleset"
)

// fakeLoader serves fixed datasets keyed by exchange, for testing the API
// without a real CSV/DB backend.
type fakeLoader struct {
	byExchange map[string]*domain.Dataset
}

func (f *fakeLoader) Load(ctx context.Context, productType, exchange string) (*domain.Dataset, error) {
	ds, ok := f.byExchange[exchange]
	if !ok {
		return nil, domain.ErrDatasetNotFound
	}
	return ds, nil
}
func (f *fakeLoader) WarmUp(ctx context.Context, productType, exchange string) error { return nil }
func (f *fakeLoader) Invalidate(ctx context.Context, productType, exchange string)   {}
func (f *fakeLoader) Stats() domain.CacheStats                                       { return domain.CacheStats{} }

func sampleLoader() *fakeLoader {
	return &fakeLoader{byExchange: map[string]*domain.Dataset{
		"NYSE": {
			ProductType: "stocks", Exchange: "NYSE",
			Columns: []string{"ric", "masterid", "sedol", "price"},
			Rows: [][]any{
				{"AAPL.O", "M1", "S1", 150.0},
				{"MSFT.O", "M2", "S2", 260.0},
				{"", "M3", nil, 50.0},
			},
		},
	}}
}

func writeRuleFile(t *testing.T, dir, relPath, content string) {
	t.Helper()
	full := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func createTestServer(t *testing.T) *Server {
	t.Helper()
	rulesDir := t.TempDir()
	writeRuleFile(t, rulesDir, "stocks/exchanges/nyse/exchange.yaml", `
- type: ColumnNotNull
  column: ric
`)

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080}
	exchangeMap := map[string][]string{"stocks": {"NYSE"}}
	handler := NewHandler(sampleLoader(), ruleset.New(rulesDir), engine.New(4), nil, exchangeMap, "test-v1")
	return NewServer(cfg, handler)
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %q", resp["version"])
	}
}

func TestHealthDetailedEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestFindByRICEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("Found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instruments/ric/AAPL.O?product_type=stocks&exchange=NYSE", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var rec map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if rec["masterid"] != "M1" {
			t.Errorf("unexpected record: %+v", rec)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instruments/ric/NOPE?product_type=stocks&exchange=NYSE", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
		var resp errorResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.ErrorType != "InstrumentNotFound" {
			t.Errorf("expected error_type InstrumentNotFound, got %q", resp.ErrorType)
		}
	})
}

func TestValidateEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/validate/stocks/NYSE", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Report domain.ValidationReport `json:"report"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Report.Success {
		t.Error("expected the NYSE dataset's blank ric row to fail column_not_null")
	}
}

func TestValidateCustomEndpointRejectsMalformedInlineRule(t *testing.T) {
	server := createTestServer(t)

	body := `{"custom_rules":[{"column":"ric"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules/validate-custom/stocks/NYSE", strings.NewReader(body))
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an inline rule missing its type, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp errorResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.ErrorType != "InvalidRule" {
		t.Errorf("expected error_type InvalidRule, got %q", resp.ErrorType)
	}
}

func TestValidateEndpointUnknownExchangeIsDatasetNotFound(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/validate/stocks/LSE", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("RateLimitMiddlewareRejectsOverBurst", func(t *testing.T) {
		mw := RateLimitMiddleware(1, 1)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)

		rr1 := httptest.NewRecorder()
		handler.ServeHTTP(rr1, req)
		rr2 := httptest.NewRecorder()
		handler.ServeHTTP(rr2, req)

		if rr1.Code != http.StatusOK {
			t.Errorf("expected first request to pass, got %d", rr1.Code)
		}
		if rr2.Code != http.StatusTooManyRequests {
			t.Errorf("expected second request to be rate limited, got %d", rr2.Code)
		}
	})

	t.Run("RateLimitMiddlewareDisabledWhenRPSZero", func(t *testing.T) {
		mw := RateLimitMiddleware(0, 0)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for i := 0; i < 5; i++ {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected request %d to pass through with limiting disabled, got %d", i, rr.Code)
			}
		}
	})
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"horse.fit/babel/internal/cache"
	"horse.fit/babel/internal/language"
	"horse.fit/babel/internal/provider"
	"horse.fit/babel/internal/ratelimit"
	"horse.fit/babel/internal/translation"
)

type fakeEngine struct {
	mu            sync.Mutex
	translateErr  error
	batchErr      error
	detectErr     error
	health        translation.Health
	identities    []string
	requests      []translation.Request
	batches       [][]translation.Request
	resetCalls    int
	clearedScopes []cache.Scope
}

func (f *fakeEngine) Translate(_ context.Context, identity string, req translation.Request) (translation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities = append(f.identities, identity)
	f.requests = append(f.requests, req)
	if f.translateErr != nil {
		return translation.Result{}, f.translateErr
	}
	return translation.Result{
		ID:             "res-1",
		TranslatedText: "Bonjour",
		Provider:       "deepl",
		SourceLang:     "en",
		TargetLang:     req.TargetLang,
	}, nil
}

func (f *fakeEngine) TranslateBatch(_ context.Context, identity string, reqs []translation.Request) (translation.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities = append(f.identities, identity)
	f.batches = append(f.batches, reqs)
	if f.batchErr != nil {
		return translation.BatchResult{}, f.batchErr
	}
	items := make([]translation.BatchItem, len(reqs))
	for i, req := range reqs {
		items[i] = translation.BatchItem{Index: i, Result: &translation.Result{TranslatedText: strings.ToUpper(req.Text)}}
	}
	return translation.BatchResult{ID: "batch-1", Items: items, Total: len(items), Succeeded: len(items)}, nil
}

func (f *fakeEngine) DetectLanguage(_ context.Context, identity, text string) (translation.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities = append(f.identities, identity)
	if f.detectErr != nil {
		return translation.Detection{}, f.detectErr
	}
	return translation.Detection{Language: "fr", Source: "lingua"}, nil
}

func (f *fakeEngine) SupportedLanguages(context.Context) []language.Option {
	return language.Supported()
}

func (f *fakeEngine) DefaultTargetLang(context.Context) string { return "en" }

func (f *fakeEngine) Health(context.Context) translation.Health { return f.health }

func (f *fakeEngine) Snapshot() translation.Snapshot {
	return translation.Snapshot{Providers: []string{"deepl"}}
}

func (f *fakeEngine) ResetStats() {
	f.mu.Lock()
	f.resetCalls++
	f.mu.Unlock()
}

func (f *fakeEngine) ClearCache(_ context.Context, scope cache.Scope) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedScopes = append(f.clearedScopes, scope)
	return 3, nil
}

func newTestServer(engine Engine, opts Options) *echo.Echo {
	return NewServer(engine, zerolog.Nop(), opts).Handler()
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, jsendResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "203.0.113.7:41000"
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp jsendResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestHandleTranslate_Success(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	e := newTestServer(engine, Options{})

	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/translate",
		`{"text":"Hello","source_lang":"en","target_lang":"fr"}`,
		map[string]string{headerAPIKey: "client-key"})

	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
	if len(engine.requests) != 1 || engine.requests[0].TargetLang != "fr" {
		t.Fatalf("unexpected engine requests: %+v", engine.requests)
	}
	identity := engine.identities[0]
	if !strings.HasPrefix(identity, "203.0.113.7|") || strings.Contains(identity, "client-key") {
		t.Fatalf("unexpected identity: %q", identity)
	}
}

func TestHandleTranslate_SchemaValidation(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	e := newTestServer(engine, Options{})

	cases := map[string]string{
		"empty body":        ``,
		"malformed":         `{"text":`,
		"missing text":      `{"target_lang":"fr"}`,
		"empty text":        `{"text":"","target_lang":"fr"}`,
		"unknown field":     `{"text":"hi","target_lang":"fr","priority":1}`,
		"wrong type":        `{"text":42,"target_lang":"fr"}`,
		"trailing document": `{"text":"hi"} {"text":"again"}`,
	}
	for name, body := range cases {
		rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/translate", body, nil)
		if rec.Code != http.StatusBadRequest || resp.Status != "fail" {
			t.Fatalf("%s: unexpected response: %d %s", name, rec.Code, rec.Body.String())
		}
	}
	if len(engine.requests) != 0 {
		t.Fatalf("invalid bodies reached the engine: %+v", engine.requests)
	}
}

func TestHandleTranslate_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		state  string
	}{
		{
			name:   "validation",
			err:    &translation.ValidationError{Field: "target_lang", Reason: "unsupported target language \"xx\""},
			status: http.StatusBadRequest,
			state:  "fail",
		},
		{
			name:   "budget",
			err:    &translation.BudgetExceededError{Period: "daily", Spent: 10, Limit: 10},
			status: http.StatusPaymentRequired,
			state:  "fail",
		},
		{
			name: "all providers failed",
			err: &translation.TranslationFailedError{Attempts: []translation.AttemptError{
				{Provider: "openai", Tries: 2, Err: &provider.Error{Provider: "openai", Op: "translate", StatusCode: 503, Cause: errors.New("overloaded")}},
			}},
			status: http.StatusBadGateway,
			state:  "error",
		},
		{
			name:   "timeout",
			err:    context.DeadlineExceeded,
			status: http.StatusGatewayTimeout,
			state:  "error",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			state:  "error",
		},
	}

	for _, tc := range cases {
		e := newTestServer(&fakeEngine{translateErr: tc.err}, Options{})
		rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/translate", `{"text":"Hello","target_lang":"fr"}`, nil)
		if rec.Code != tc.status || resp.Status != tc.state {
			t.Fatalf("%s: unexpected response: got %d/%s want %d/%s (%s)", tc.name, rec.Code, resp.Status, tc.status, tc.state, rec.Body.String())
		}
	}
}

func TestHandleTranslate_RateLimitHeaders(t *testing.T) {
	t.Parallel()

	resetAt := time.Date(2026, 5, 1, 12, 0, 30, 0, time.UTC)
	engine := &fakeEngine{translateErr: &translation.RateLimitedError{
		Identifier: "203.0.113.7",
		RetryAfter: 1500 * time.Millisecond,
		Decision: ratelimit.Decision{
			Identifier: "203.0.113.7",
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: 1500 * time.Millisecond,
		},
	}}
	e := newTestServer(engine, Options{})

	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/translate", `{"text":"Hello","target_lang":"fr"}`, nil)
	if rec.Code != http.StatusTooManyRequests || resp.Status != "fail" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("unexpected Retry-After: got %q want 2", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected X-RateLimit-Remaining: %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1777636830" {
		t.Fatalf("unexpected X-RateLimit-Reset: %q", got)
	}
}

func TestHandleTranslateBatch(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	e := newTestServer(engine, Options{})

	rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/translate/batch",
		`{"texts":["one","two","three"],"target_lang":"de"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, e, http.MethodPost, "/api/v1/translate/batch",
		`{"items":[{"text":"uno","source_lang":"es"},{"text":"two","target_lang":"it"}],"target_lang":"de"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}

	if len(engine.batches) != 2 {
		t.Fatalf("unexpected batch count: %d", len(engine.batches))
	}
	if got := engine.batches[0]; len(got) != 3 || got[2].Text != "three" || got[2].TargetLang != "de" {
		t.Fatalf("unexpected texts expansion: %+v", got)
	}
	items := engine.batches[1]
	if items[0].SourceLang != "es" || items[0].TargetLang != "de" || items[1].TargetLang != "it" {
		t.Fatalf("unexpected item expansion: %+v", items)
	}

	rec, _ = doJSON(t, e, http.MethodPost, "/api/v1/translate/batch",
		`{"texts":["a"],"items":[{"text":"b"}],"target_lang":"de"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected texts and items together to be rejected, got %d", rec.Code)
	}
}

func TestHandleDetect(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeEngine{}, Options{})
	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/detect", `{"text":"Bonjour tout le monde"}`, nil)
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	e = newTestServer(&fakeEngine{detectErr: translation.ErrUndetermined}, Options{})
	rec, _ = doJSON(t, e, http.MethodPost, "/api/v1/detect", `{"text":"12345"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status for undetermined language: %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeEngine{health: translation.Health{Status: translation.StatusDegraded}}, Options{})
	rec, _ := doJSON(t, e, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded service should report 200, got %d", rec.Code)
	}

	e = newTestServer(&fakeEngine{health: translation.Health{Status: translation.StatusDown}}, Options{})
	rec, _ = doJSON(t, e, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("down service should report 503, got %d", rec.Code)
	}
}

func TestHandleLanguagesAndStats(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeEngine{}, Options{})

	rec, resp := doJSON(t, e, http.MethodGet, "/api/v1/languages", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected languages status: %d", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["default_target_lang"] != "en" {
		t.Fatalf("unexpected languages payload: %+v", resp.Data)
	}

	rec, _ = doJSON(t, e, http.MethodGet, "/api/v1/stats", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"providers":["deepl"]`) {
		t.Fatalf("unexpected stats response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminReset(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-token-for-tests"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}

	engine := &fakeEngine{}
	e := newTestServer(engine, Options{AdminTokenHash: string(hash)})

	rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/admin/reset", `{"scope":"all"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected missing token to be rejected, got %d", rec.Code)
	}

	rec, _ = doJSON(t, e, http.MethodPost, "/api/v1/admin/reset", `{"scope":"everything"}`,
		map[string]string{headerAdminToken: "admin-token-for-tests"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown scope to be rejected, got %d", rec.Code)
	}

	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/admin/reset", `{"scope":"all"}`,
		map[string]string{headerAdminToken: "admin-token-for-tests"})
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("unexpected reset response: %d %s", rec.Code, rec.Body.String())
	}
	if engine.resetCalls != 1 || len(engine.clearedScopes) != 1 || engine.clearedScopes[0] != cache.ScopeAll {
		t.Fatalf("unexpected reset effects: resets=%d scopes=%v", engine.resetCalls, engine.clearedScopes)
	}

	rec, _ = doJSON(t, e, http.MethodPost, "/api/v1/admin/reset", `{"scope":"cache:memory"}`,
		map[string]string{headerAdminToken: "admin-token-for-tests"})
	if rec.Code != http.StatusOK || engine.clearedScopes[1] != cache.ScopeMemory || engine.resetCalls != 1 {
		t.Fatalf("unexpected memory-only reset: %d scopes=%v resets=%d", rec.Code, engine.clearedScopes, engine.resetCalls)
	}
}

func TestAdminReset_DisabledWithoutHash(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeEngine{}, Options{})
	rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/admin/reset", `{"scope":"stats"}`,
		map[string]string{headerAdminToken: "anything-at-all-here"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected disabled admin routes to 404, got %d", rec.Code)
	}
}

func TestTrustProxyUsesForwardedAddress(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	e := newTestServer(engine, Options{TrustProxy: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translate", strings.NewReader(`{"text":"Hello","target_lang":"fr"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXForwardedFor, "198.51.100.20")
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := engine.identities[0]; got != "198.51.100.20" {
		t.Fatalf("unexpected identity: got %q want 198.51.100.20", got)
	}
}

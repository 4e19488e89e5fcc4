package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/Emrys-Org/gaius-loyalty/internal/app"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
)

const (
	testSecret  = "test-jwt-secret"
	testAddress = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ"
)

// fakeChain satisfies both chain surfaces and records submitted XP awards so
// ledger replays observe them.
type fakeChain struct {
	nextAsset uint64
	nextRound uint64
	optedIn   bool
	awards    []chain.Transaction
}

func newFakeChain() *fakeChain {
	return &fakeChain{nextAsset: 100, nextRound: 1, optedIn: true}
}

func (f *fakeChain) round() uint64 {
	f.nextRound++
	return f.nextRound
}

func (f *fakeChain) MintAsset(context.Context, string, string, string, string) (chain.MintResult, error) {
	f.nextAsset++
	return chain.MintResult{AssetID: f.nextAsset, TxID: fmt.Sprintf("MINT%d", f.nextAsset), Round: f.round()}, nil
}

func (f *fakeChain) TransferAsset(_ context.Context, assetID uint64, _ string) (string, uint64, error) {
	return fmt.Sprintf("XFER%d", assetID), f.round(), nil
}

func (f *fakeChain) ClawbackAsset(_ context.Context, assetID uint64, _ string) (string, uint64, error) {
	return fmt.Sprintf("CLAW%d", assetID), f.round(), nil
}

func (f *fakeChain) SubmitXPAward(_ context.Context, _ string, note []byte) (string, uint64, error) {
	round := f.round()
	txid := fmt.Sprintf("XP%d", round)
	f.awards = append(f.awards, chain.Transaction{
		ID:             txid,
		Type:           "pay",
		ConfirmedRound: round,
		RoundTime:      time.Now().Unix(),
		Note:           note,
	})
	return txid, round, nil
}

func (f *fakeChain) AccountHolding(context.Context, string, uint64) (bool, uint64, error) {
	return f.optedIn, 0, nil
}

func (f *fakeChain) XPTransactions(context.Context, string, uint64) ([]chain.Transaction, error) {
	return f.awards, nil
}

func newTestHandler(t *testing.T) (http.Handler, *fakeChain) {
	t.Helper()
	fc := newFakeChain()
	application, err := app.New(app.Stores{}, app.Options{
		Writer:       fc,
		Indexer:      fc,
		SyncInterval: time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	handler := AuthMiddleware([]byte(testSecret), nil, nil)(NewHandler(application, fakeMetadata{}))
	return handler, fc
}

type fakeMetadata struct{}

func (fakeMetadata) Fetch(_ context.Context, cidOrURL string) ([]byte, error) {
	return []byte(`{"name":"pinned","source":"` + cidOrURL + `"}`), nil
}

func testToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authedRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "merchant-1"))
	return req
}

func do(t *testing.T, handler http.Handler, req *http.Request, wantStatus int) []byte {
	t.Helper()
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", req.Method, req.URL.Path, wantStatus, resp.Code, resp.Body.String())
	}
	return resp.Body.Bytes()
}

func TestHandlerLifecycle(t *testing.T) {
	handler, _ := newTestHandler(t)

	raw := do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs", map[string]any{
		"name":      "Corner Cafe Rewards",
		"image_cid": "bafyart",
	}), http.StatusCreated)
	var prog map[string]any
	if err := json.Unmarshal(raw, &prog); err != nil {
		t.Fatalf("unmarshal program: %v", err)
	}
	progID := prog["ID"].(string)
	if prog["OwnerID"] != "merchant-1" {
		t.Fatalf("expected owner from token, got %v", prog["OwnerID"])
	}
	if prog["AssetID"].(float64) == 0 {
		t.Fatal("expected minted asset id")
	}

	raw = do(t, handler, authedRequest(t, http.MethodGet, "/v1/programs/"+progID+"/metadata", nil), http.StatusOK)
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta["source"] != "ipfs://bafyart" {
		t.Fatalf("unexpected metadata source %v", meta["source"])
	}

	do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs/"+progID+"/members", map[string]any{
		"address":      testAddress,
		"display_name": "Ada",
	}), http.StatusCreated)

	raw = do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs/"+progID+"/passes", map[string]any{
		"address": testAddress,
	}), http.StatusCreated)
	var issued map[string]any
	if err := json.Unmarshal(raw, &issued); err != nil {
		t.Fatalf("unmarshal pass: %v", err)
	}
	passID := issued["ID"].(string)
	if issued["Status"] != "issued" {
		t.Fatalf("expected issued pass, got %v", issued["Status"])
	}

	raw = do(t, handler, authedRequest(t, http.MethodPost, "/v1/passes/"+passID+"/claim", nil), http.StatusOK)
	var claimed map[string]any
	if err := json.Unmarshal(raw, &claimed); err != nil {
		t.Fatalf("unmarshal claimed pass: %v", err)
	}
	if claimed["Status"] != "claimed" {
		t.Fatalf("expected claimed pass, got %v", claimed["Status"])
	}

	raw = do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs/"+progID+"/xp", map[string]any{
		"address": testAddress,
		"points":  600,
		"reason":  "launch bonus",
	}), http.StatusOK)
	var award map[string]any
	if err := json.Unmarshal(raw, &award); err != nil {
		t.Fatalf("unmarshal award: %v", err)
	}
	if award["TxID"] == "" {
		t.Fatal("expected award txid")
	}

	raw = do(t, handler, authedRequest(t, http.MethodGet, "/v1/programs/"+progID+"/members/"+testAddress+"/ledger", nil), http.StatusOK)
	var ledger map[string]any
	if err := json.Unmarshal(raw, &ledger); err != nil {
		t.Fatalf("unmarshal ledger: %v", err)
	}
	if ledger["Total"].(float64) != 600 {
		t.Fatalf("expected total 600, got %v", ledger["Total"])
	}
	if ledger["Tier"] != "Silver" {
		t.Fatalf("expected Silver tier, got %v", ledger["Tier"])
	}

	raw = do(t, handler, authedRequest(t, http.MethodGet, "/v1/programs/"+progID+"/ledgers", nil), http.StatusOK)
	var ledgers []map[string]any
	if err := json.Unmarshal(raw, &ledgers); err != nil {
		t.Fatalf("unmarshal ledgers: %v", err)
	}
	if len(ledgers) != 1 {
		t.Fatalf("expected 1 ledger, got %d", len(ledgers))
	}

	raw = do(t, handler, authedRequest(t, http.MethodPost, "/v1/passes/"+passID+"/revoke", nil), http.StatusOK)
	var revoked map[string]any
	if err := json.Unmarshal(raw, &revoked); err != nil {
		t.Fatalf("unmarshal revoked pass: %v", err)
	}
	if revoked["Status"] != "revoked" {
		t.Fatalf("expected revoked pass, got %v", revoked["Status"])
	}

	do(t, handler, authedRequest(t, http.MethodDelete, "/v1/programs/"+progID, nil), http.StatusOK)
}

func TestHandlerRejectsUnknownProgram(t *testing.T) {
	handler, _ := newTestHandler(t)
	do(t, handler, authedRequest(t, http.MethodGet, "/v1/programs/missing", nil), http.StatusNotFound)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddlewareRejectsForgedToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	claims := jwt.RegisteredClaims{Subject: "intruder", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddlewareStripsClientIdentity(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	req.Header.Set(userIDHeader, "spoofed")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestClaimRequiresOptIn(t *testing.T) {
	handler, fc := newTestHandler(t)
	fc.optedIn = false

	raw := do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs", map[string]any{
		"name": "Gym Punch Card",
	}), http.StatusCreated)
	var prog map[string]any
	if err := json.Unmarshal(raw, &prog); err != nil {
		t.Fatalf("unmarshal program: %v", err)
	}
	progID := prog["ID"].(string)

	do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs/"+progID+"/members", map[string]any{
		"address": testAddress,
	}), http.StatusCreated)
	raw = do(t, handler, authedRequest(t, http.MethodPost, "/v1/programs/"+progID+"/passes", map[string]any{
		"address": testAddress,
	}), http.StatusCreated)
	var issued map[string]any
	if err := json.Unmarshal(raw, &issued); err != nil {
		t.Fatalf("unmarshal pass: %v", err)
	}

	do(t, handler, authedRequest(t, http.MethodPost, "/v1/passes/"+issued["ID"].(string)+"/claim", nil), http.StatusBadRequest)
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := CORSMiddleware([]string{"http://localhost:5173"})(inner)

	req := httptest.NewRequest(http.MethodOptions, "/v1/programs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected preflight 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", resp.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := NewRateLimiter(1, 2).Middleware(inner)

	var limited bool
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatal("expected rate limiter to trip")
	}

	// A different client gets its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected fresh client to pass, got %d", resp.Code)
	}
}

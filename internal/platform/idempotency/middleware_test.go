package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
)

var fixedTime = time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)

func newRequest(t *testing.T, uid, key, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/order/cod", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"ord_1"}}`))
	})
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusCreated))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest(t, "user-1", "", `{}`))
		if rr.Code != http.StatusCreated {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}

func TestMiddlewareRequiresKeyWhenConfigured(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), RequireKey())(countingHandler(&calls, http.StatusCreated))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest(t, "user-1", "", `{}`))

	if calls != 0 {
		t.Fatal("handler should not run without a key")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertEnvelopeCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newRequest(t, "user-1", "abc-123", `{"addressId":"a1"}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newRequest(t, "user-1", "abc-123", `{"addressId":"a1"}`))

	if calls != 1 {
		t.Fatalf("expected a single handler call, got %d", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatal("expected replay header")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", second.Body.String(), first.Body.String())
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentBody(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest(t, "user-1", "k1", `{"addressId":"a1"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest(t, "user-1", "k1", `{"addressId":"a2"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertEnvelopeCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
}

func TestMiddlewareScopesKeysPerUser(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest(t, "user-1", "shared", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(t, "user-2", "shared", `{}`))

	if calls != 2 {
		t.Fatalf("expected each user to run the handler, got %d", calls)
	}
}

func TestMiddlewareReleasesKeyOnServerError(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusInternalServerError))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest(t, "user-1", "retry-me", `{}`))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected retry after 5xx to run the handler, got %d", calls)
	}
}

func TestMiddlewarePendingReservationConflicts(t *testing.T) {
	store := NewMemoryStore()
	scoped := "busy|user-1"
	req := newRequest(t, "user-1", "busy", `{}`)
	fingerprint := requestFingerprint(req, []byte(`{}`), "user-1")
	if _, err := store.Reserve(context.Background(), scoped, fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(countingHandler(&calls, http.StatusCreated))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertEnvelopeCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "old", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "fresh", "fp", fixedTime, 48*time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	reservation, err := store.Reserve(ctx, "fresh", "fp", fixedTime.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("reserve fresh: %v", err)
	}
	if reservation.State != ReservationStatePending {
		t.Fatalf("expected fresh record to survive, got state %v", reservation.State)
	}
}

func TestMemoryStoreExpiredRecordIsReservedAgain(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "k", "fp-a", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	reservation, err := store.Reserve(ctx, "k", "fp-b", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("expected expired record to be replaced, got %v", err)
	}
	if reservation.State != ReservationStateNew || reservation.Record.Fingerprint != "fp-b" {
		t.Fatalf("unexpected reservation %+v", reservation)
	}
}

func assertEnvelopeCode(t *testing.T, body []byte, code string) {
	t.Helper()
	var payload struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Success || payload.Code != code {
		t.Fatalf("expected failure envelope with code %q, got %+v", code, payload)
	}
}

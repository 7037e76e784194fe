package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	squarewebhook "github.com/tidyops/tidyops-backend/internal/webhooks/square"
)

func TestSquareWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildSquareEvent(t, "card.created")
	header := buildSquareSignature(payload, "secret")
	service := &fakeSquareWebhookService{}
	store := newInMemoryStore()
	guard, err := squarewebhook.NewIdempotencyGuard(store, time.Minute, "square-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req2.Header.Set("Square-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate should not increment calls, got %d", service.calls)
	}
}

func TestSquareWebhook_InvalidSignature(t *testing.T) {
	payload := buildSquareEvent(t, "charge.succeeded")
	service := &fakeSquareWebhookService{}
	store := newInMemoryStore()
	guard, err := squarewebhook.NewIdempotencyGuard(store, time.Minute, "square-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", "invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if envelope.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %s", envelope.Error.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestSquareWebhook_MissingSignature(t *testing.T) {
	payload := buildSquareEvent(t, "charge.succeeded")
	service := &fakeSquareWebhookService{}
	store := newInMemoryStore()
	guard, err := squarewebhook.NewIdempotencyGuard(store, time.Minute, "square-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked without a signature")
	}
}

func TestSquareWebhook_GuardReleasedOnServiceFailure(t *testing.T) {
	payload := buildSquareEvent(t, "charge.failed")
	header := buildSquareSignature(payload, "secret")
	service := &fakeSquareWebhookService{err: fmt.Errorf("db down")}
	store := newInMemoryStore()
	guard, err := squarewebhook.NewIdempotencyGuard(store, time.Minute, "square-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Fatalf("expected failure status, got 200")
	}

	// A retry after the failure must reach the service again.
	service.err = nil
	retry := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	retry.Header.Set("Square-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, retry)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec2.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected two service invocations, got %d", service.calls)
	}
}

func buildSquareEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	bookingID := uuid.NewString()
	event := &squarewebhook.SquareWebhookEvent{
		EventID: "evt_" + uuid.NewString(),
		Type:    eventType,
		Data: squarewebhook.SquareWebhookData{
			Type: eventType,
			ID:   eventType + "_" + uuid.NewString(),
			Object: squarewebhook.SquareWebhookObject{
				Card: &squarewebhook.CardObject{
					ID:          "card_" + uuid.NewString(),
					CustomerID:  "cust_" + uuid.NewString(),
					ReferenceID: bookingID,
					Brand:       "VISA",
					Last4:       "4242",
				},
				Payment: &squarewebhook.PaymentObject{
					ID:          "pay_" + uuid.NewString(),
					Status:      "COMPLETED",
					ReferenceID: bookingID,
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func buildSquareSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeSquareWebhookService struct {
	calls int
	err   error
}

func (f *fakeSquareWebhookService) HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error {
	f.calls++
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("to:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/money"
)

func testAssets() (money.Asset, money.Asset) {
	return money.Asset{Code: "MUSD", Decimals: 6}, money.Asset{Code: "USDC", Decimals: 6}
}

func testSettlement() journal.Settlement {
	return journal.Settlement{
		InboundTxID:   "0.0.1001-1756700010-000000001",
		OutboundTxID:  "0.0.400-1756700020-000000002",
		UserAccountID: "0.0.1001",
		SourceToken:   "MUSD",
		SourceTiny:    100500000,
		DestToken:     "USDC",
		GrossTiny:     101505000,
		FeeTiny:       1015050,
		NetTiny:       100489950,
		Rate:          "1.01000000",
		RateSequence:  17,
		SettledAt:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func notifyConfig(url string) config.NotificationsConfig {
	return config.NotificationsConfig{
		WithdrawalURL: url,
		Headers:       map[string]string{"X-Webhook-Secret": "s3cret"},
		Timeout:       config.Duration{Duration: time.Second},
		Retry: config.RetryConfig{
			Enabled:         true,
			MaxAttempts:     3,
			InitialInterval: config.Duration{Duration: time.Millisecond},
			MaxInterval:     config.Duration{Duration: 5 * time.Millisecond},
			Multiplier:      2.0,
		},
	}
}

func TestSettlementCompletedDeliversEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Webhook-Secret"); got != "s3cret" {
			t.Errorf("secret header = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Errorf("payload not JSON: %v", err)
		}
		received <- ev
	}))
	defer srv.Close()

	src, dst := testAssets()
	client := NewClient(notifyConfig(srv.URL), src, dst)
	client.SettlementCompleted(t.Context(), testSettlement())
	client.Wait()

	select {
	case ev := <-received:
		if ev.Type != "withdrawal.settled" {
			t.Errorf("type = %q", ev.Type)
		}
		if ev.EventID != "0.0.1001-1756700010-000000001" {
			t.Errorf("eventId = %q", ev.EventID)
		}
		if ev.AmountSource != "100.500000" {
			t.Errorf("amountSource = %q", ev.AmountSource)
		}
		if ev.AmountDestination != "100.489950" {
			t.Errorf("amountDestination = %q", ev.AmountDestination)
		}
		if ev.Fee != "1.015050" {
			t.Errorf("fee = %q", ev.Fee)
		}
		if ev.SettledAt != "2026-09-01T12:00:00Z" {
			t.Errorf("settledAt = %q", ev.SettledAt)
		}
	default:
		t.Fatal("webhook never received")
	}
}

func TestSettlementCompletedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src, dst := testAssets()
	client := NewClient(notifyConfig(srv.URL), src, dst)
	client.SettlementCompleted(t.Context(), testSettlement())
	client.Wait()

	if n := calls.Load(); n != 3 {
		t.Errorf("endpoint saw %d calls, want 3", n)
	}
}

func TestSettlementCompletedDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	src, dst := testAssets()
	client := NewClient(notifyConfig(srv.URL), src, dst)
	client.SettlementCompleted(t.Context(), testSettlement())
	client.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("endpoint saw %d calls, want 1", n)
	}
}

func TestNewClientDisabledWithoutURL(t *testing.T) {
	src, dst := testAssets()
	if client := NewClient(config.NotificationsConfig{}, src, dst); client != nil {
		t.Error("NewClient() with no URL should be nil")
	}

	// A nil client is safe to call.
	var nilClient *Client
	nilClient.SettlementCompleted(t.Context(), testSettlement())
	nilClient.Wait()
}

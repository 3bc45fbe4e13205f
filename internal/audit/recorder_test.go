package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type stubSubmitter struct {
	topicID string
	payload []byte
	err     error
}

func (s *stubSubmitter) SubmitTopicMessage(ctx context.Context, topicID string, payload []byte) (string, error) {
	s.topicID = topicID
	s.payload = payload
	if s.err != nil {
		return "", s.err
	}
	return "0.0.400-1756700300-000000007", nil
}

func sampleEntry() Entry {
	return Entry{
		Event:         "instant_withdrawal_settled",
		UserAccountID: "0.0.1001",
		SourceToken:   "MUSD",
		AmountSource:  "100.500000",
		DestToken:     "USDC",
		AmountGross:   "101.505000",
		Fee:           "1.015050",
		AmountNet:     "100.489950",
		Rate:          "1.01000000",
		RateSequence:  17,
		InboundTxID:   "0.0.1001-1756700010-000000001",
		OutboundTxID:  "0.0.400-1756700020-000000002",
		SettledAt:     "2026-09-01T12:00:00Z",
	}
}

func TestPublishWritesEntryToTopic(t *testing.T) {
	sub := &stubSubmitter{}
	rec := New(sub, "0.0.8008", time.Second)

	txID, ok := rec.Publish(context.Background(), sampleEntry())
	if !ok {
		t.Fatal("Publish() ok = false, want true")
	}
	if txID != "0.0.400-1756700300-000000007" {
		t.Errorf("txID = %q", txID)
	}
	if sub.topicID != "0.0.8008" {
		t.Errorf("topicID = %q, want 0.0.8008", sub.topicID)
	}

	var got Entry
	if err := json.Unmarshal(sub.payload, &got); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if got != sampleEntry() {
		t.Errorf("round-tripped entry = %+v", got)
	}
}

func TestPublishFailureIsReportedNotFatal(t *testing.T) {
	sub := &stubSubmitter{err: errors.New("network partition")}
	rec := New(sub, "0.0.8008", time.Second)

	txID, ok := rec.Publish(context.Background(), sampleEntry())
	if ok {
		t.Error("Publish() ok = true, want false")
	}
	if txID != "" {
		t.Errorf("txID = %q, want empty", txID)
	}
}

func TestPublishSurvivesCancelledRequestContext(t *testing.T) {
	sub := &stubSubmitter{}
	rec := New(sub, "0.0.8008", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := rec.Publish(ctx, sampleEntry())
	if !ok {
		t.Fatal("Publish() should succeed after request cancellation")
	}
}

package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/MeridianProtocol/server/internal/hedera"
	"github.com/MeridianProtocol/server/internal/money"
)

type stubTopicReader struct {
	msg *hedera.TopicMessage
	err error
}

func (s *stubTopicReader) LatestTopicMessage(ctx context.Context, topicID string) (*hedera.TopicMessage, error) {
	return s.msg, s.err
}

func topicMessage(seq int64, body string) *hedera.TopicMessage {
	return &hedera.TopicMessage{
		ConsensusTimestamp: "1756700200.000000000",
		Message:            base64.StdEncoding.EncodeToString([]byte(body)),
		SequenceNumber:     seq,
	}
}

func TestCurrentRate(t *testing.T) {
	tests := []struct {
		name     string
		msg      *hedera.TopicMessage
		err      error
		wantRate string
		wantSeq  int64
		wantErr  bool
	}{
		{
			name:     "rate as string",
			msg:      topicMessage(17, `{"rate":"1.01"}`),
			wantRate: "1.01000000",
			wantSeq:  17,
		},
		{
			name:     "rate as number",
			msg:      topicMessage(18, `{"rate":0.9975}`),
			wantRate: "0.99750000",
			wantSeq:  18,
		},
		{
			name:     "extra fields ignored",
			msg:      topicMessage(19, `{"rate":"1.00000001","publisher":"0.0.400","nonce":7}`),
			wantRate: "1.00000001",
			wantSeq:  19,
		},
		{
			name:    "mirror failure",
			err:     hedera.ErrMirrorUnavailable,
			wantErr: true,
		},
		{
			name:    "empty topic",
			err:     hedera.ErrNotFound,
			wantErr: true,
		},
		{
			name: "not base64",
			msg: &hedera.TopicMessage{
				Message:        "not-base-64!!!",
				SequenceNumber: 20,
			},
			wantErr: true,
		},
		{
			name:    "not json",
			msg:     topicMessage(21, `rate=1.01`),
			wantErr: true,
		},
		{
			name:    "missing rate field",
			msg:     topicMessage(22, `{"price":"1.01"}`),
			wantErr: true,
		},
		{
			name:    "zero rate",
			msg:     topicMessage(23, `{"rate":"0"}`),
			wantErr: true,
		},
		{
			name:    "negative rate",
			msg:     topicMessage(24, `{"rate":"-1.01"}`),
			wantErr: true,
		},
		{
			name:     "excess rate precision rounds half away from zero",
			msg:      topicMessage(25, `{"rate":"1.000000005"}`),
			wantRate: "1.00000001",
			wantSeq:  25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&stubTopicReader{msg: tt.msg, err: tt.err}, "0.0.7007")
			rec, err := client.CurrentRate(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("CurrentRate() error = %v, want ErrUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CurrentRate() error = %v", err)
			}
			if got := rec.Rate.Decimal(); got != tt.wantRate {
				t.Errorf("rate = %s, want %s", got, tt.wantRate)
			}
			if rec.Sequence != tt.wantSeq {
				t.Errorf("sequence = %d, want %d", rec.Sequence, tt.wantSeq)
			}
		})
	}
}

func TestCurrentRateBitExactComparison(t *testing.T) {
	client := NewClient(&stubTopicReader{msg: topicMessage(30, `{"rate":"1.0100"}`)}, "0.0.7007")
	rec, err := client.CurrentRate(context.Background())
	if err != nil {
		t.Fatalf("CurrentRate() error = %v", err)
	}
	expected, err := money.ParseRate("1.01")
	if err != nil {
		t.Fatalf("ParseRate() error = %v", err)
	}
	if !rec.Rate.Equal(expected) {
		t.Errorf("rate %d does not equal canonical 1.01 (%d)", rec.Rate, expected)
	}
}

// Package audit publishes settlement records to a consensus topic. The topic
// is an append-only trail for reconciliation; publication is best effort and
// never blocks or fails a settlement that already moved funds.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MeridianProtocol/server/internal/logger"
)

// TopicSubmitter is the slice of the ledger client the recorder needs.
type TopicSubmitter interface {
	SubmitTopicMessage(ctx context.Context, topicID string, payload []byte) (string, error)
}

// Entry is one settlement audit record as written to the topic.
type Entry struct {
	Event         string `json:"event"`
	UserAccountID string `json:"userAccountId"`
	SourceToken   string `json:"sourceToken"`
	AmountSource  string `json:"amountSource"`
	DestToken     string `json:"destToken"`
	AmountGross   string `json:"amountGross"`
	Fee           string `json:"fee"`
	AmountNet     string `json:"amountNet"`
	Rate          string `json:"rate"`
	RateSequence  int64  `json:"rateSequence"`
	InboundTxID   string `json:"inboundTxId"`
	OutboundTxID  string `json:"outboundTxId"`
	SettledAt     string `json:"settledAt"`
}

// Recorder writes entries to the configured audit topic.
type Recorder struct {
	ledger  TopicSubmitter
	topicID string
	timeout time.Duration
}

// New builds a recorder. A zero timeout defaults to ten seconds per publish.
func New(ledger TopicSubmitter, topicID string, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Recorder{ledger: ledger, topicID: topicID, timeout: timeout}
}

// Publish writes the entry to the topic and returns the submission's
// transaction ID. A failed publish is logged and reported through ok=false;
// the settlement it describes already happened and stands regardless.
func (r *Recorder) Publish(ctx context.Context, entry Entry) (txID string, ok bool) {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("audit.marshal_failed")
		return "", false
	}

	// The request context may already be near its deadline; give the
	// publish its own budget, detached from request cancellation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	txID, err = r.ledger.SubmitTopicMessage(pubCtx, r.topicID, payload)
	if err != nil {
		log.Error().
			Str("event", entry.Event).
			Str("inbound_tx", logger.TruncateAddress(entry.InboundTxID)).
			Err(err).
			Msg("audit.publish_failed")
		return "", false
	}

	log.Info().
		Str("event", entry.Event).
		Str("audit_tx", logger.TruncateAddress(txID)).
		Msg("audit.published")
	return txID, true
}

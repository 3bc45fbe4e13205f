// Package oracle reads the authoritative exchange rate from a Hedera
// consensus topic. Rate publishers append JSON messages to the topic; the
// latest message by consensus order is the price of record.
package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MeridianProtocol/server/internal/hedera"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/money"
)

// ErrUnavailable signals that no usable rate could be read from the topic.
// There is never a fallback rate: settlement refuses rather than guesses.
var ErrUnavailable = errors.New("oracle: rate unavailable")

// Record is one published exchange rate together with its position on the
// topic, so audit entries can cite the exact message used.
type Record struct {
	Rate               money.Rate
	Sequence           int64
	ConsensusTimestamp string
}

// TopicReader is the slice of the mirror client the oracle needs.
type TopicReader interface {
	LatestTopicMessage(ctx context.Context, topicID string) (*hedera.TopicMessage, error)
}

// Client resolves the current MUSD/USDC rate from the configured topic.
type Client struct {
	mirror  TopicReader
	topicID string
}

// NewClient builds an oracle over the given topic.
func NewClient(mirror TopicReader, topicID string) *Client {
	return &Client{mirror: mirror, topicID: topicID}
}

// ratePayload is the published message body. Rate arrives as a JSON string
// or number; json.Number preserves the decimal text either way.
type ratePayload struct {
	Rate json.Number `json:"rate"`
}

// CurrentRate fetches and parses the newest rate message. Any failure along
// the way, from an unreachable mirror to a malformed payload, maps to
// ErrUnavailable with the cause attached.
func (c *Client) CurrentRate(ctx context.Context) (Record, error) {
	log := logger.FromContext(ctx)

	msg, err := c.mirror.LatestTopicMessage(ctx, c.topicID)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	raw, err := base64.StdEncoding.DecodeString(msg.Message)
	if err != nil {
		log.Warn().Int64("sequence", msg.SequenceNumber).Err(err).Msg("oracle.message_not_base64")
		return Record{}, fmt.Errorf("%w: message %d is not base64", ErrUnavailable, msg.SequenceNumber)
	}

	var payload ratePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Int64("sequence", msg.SequenceNumber).Err(err).Msg("oracle.message_not_json")
		return Record{}, fmt.Errorf("%w: message %d is not valid JSON", ErrUnavailable, msg.SequenceNumber)
	}
	if payload.Rate == "" {
		return Record{}, fmt.Errorf("%w: message %d has no rate field", ErrUnavailable, msg.SequenceNumber)
	}

	rate, err := money.ParseRate(payload.Rate.String())
	if err != nil {
		log.Warn().
			Int64("sequence", msg.SequenceNumber).
			Str("rate", payload.Rate.String()).
			Err(err).
			Msg("oracle.rate_invalid")
		return Record{}, fmt.Errorf("%w: message %d rate %q: %v", ErrUnavailable, msg.SequenceNumber, payload.Rate, err)
	}

	log.Debug().
		Int64("sequence", msg.SequenceNumber).
		Str("rate", rate.Decimal()).
		Msg("oracle.rate_resolved")

	return Record{
		Rate:               rate,
		Sequence:           msg.SequenceNumber,
		ConsensusTimestamp: msg.ConsensusTimestamp,
	}, nil
}

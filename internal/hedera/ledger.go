package hedera

import (
	"context"
	"errors"
	"fmt"
	"time"

	hiero "github.com/hashgraph/hedera-sdk-go/v2"

	"github.com/MeridianProtocol/server/internal/circuitbreaker"
	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/metrics"
)

// ErrTransferRejected signals that the network processed a transfer
// transaction but did not apply it.
var ErrTransferRejected = errors.New("hedera: transfer rejected by network")

// TransferResult reports the outcome of a submitted transfer.
type TransferResult struct {
	TransactionID string
	Status        string
}

// LedgerClient submits transactions to the Hedera network as the configured
// operator account. Token transfers are two-leg and atomic: either both the
// debit and the credit apply, or neither does.
type LedgerClient struct {
	client  *hiero.Client
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
}

// LedgerOption customizes the ledger client.
type LedgerOption func(*LedgerClient)

// WithLedgerBreaker routes network submissions through the breaker manager.
func WithLedgerBreaker(breaker *circuitbreaker.Manager) LedgerOption {
	return func(c *LedgerClient) {
		c.breaker = breaker
	}
}

// WithLedgerMetrics records ledger submission observations.
func WithLedgerMetrics(m *metrics.Metrics) LedgerOption {
	return func(c *LedgerClient) {
		c.metrics = m
	}
}

// NewLedgerClient builds a network client for the configured Hedera network
// and operator credentials.
func NewLedgerClient(cfg config.HederaConfig, opts ...LedgerOption) (*LedgerClient, error) {
	client, err := hiero.ClientForName(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("hedera network %q: %w", cfg.Network, err)
	}

	operatorID, err := hiero.AccountIDFromString(cfg.OperatorAccountID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("operator account id: %w", err)
	}
	operatorKey, err := hiero.PrivateKeyFromString(cfg.OperatorPrivateKey)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("operator private key: %w", err)
	}
	client.SetOperator(operatorID, operatorKey)

	c := &LedgerClient{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TransferToken moves amountTiny of the token from one account to the other
// in a single atomic transaction. The operator must hold the signing key for
// the debited account.
func (c *LedgerClient) TransferToken(ctx context.Context, tokenID, fromAccount, toAccount string, amountTiny int64) (TransferResult, error) {
	if amountTiny <= 0 {
		return TransferResult{}, fmt.Errorf("transfer amount must be positive, got %d", amountTiny)
	}

	token, err := hiero.TokenIDFromString(tokenID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("token id: %w", err)
	}
	from, err := hiero.AccountIDFromString(fromAccount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("from account: %w", err)
	}
	to, err := hiero.AccountIDFromString(toAccount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("to account: %w", err)
	}

	start := time.Now()
	result, err := c.submit(ctx, func() (TransferResult, error) {
		resp, err := hiero.NewTransferTransaction().
			AddTokenTransfer(token, from, -amountTiny).
			AddTokenTransfer(token, to, amountTiny).
			Execute(c.client)
		if err != nil {
			return TransferResult{}, fmt.Errorf("execute transfer: %w", err)
		}

		receipt, err := resp.GetReceipt(c.client)
		if err != nil {
			return TransferResult{}, fmt.Errorf("transfer receipt: %w", err)
		}
		res := TransferResult{
			TransactionID: resp.TransactionID.String(),
			Status:        receipt.Status.String(),
		}
		if receipt.Status != hiero.StatusSuccess {
			return res, fmt.Errorf("%w: %s", ErrTransferRejected, receipt.Status)
		}
		return res, nil
	})
	if c.metrics != nil {
		c.metrics.ObserveLedgerSubmit("token_transfer", submitStatus(err), time.Since(start))
	}
	return result, err
}

// SubmitTopicMessage publishes payload to a consensus topic and returns the
// transaction ID once the network accepts it.
func (c *LedgerClient) SubmitTopicMessage(ctx context.Context, topicID string, payload []byte) (string, error) {
	topic, err := hiero.TopicIDFromString(topicID)
	if err != nil {
		return "", fmt.Errorf("topic id: %w", err)
	}

	start := time.Now()
	result, err := c.submit(ctx, func() (TransferResult, error) {
		resp, err := hiero.NewTopicMessageSubmitTransaction().
			SetTopicID(topic).
			SetMessage(payload).
			Execute(c.client)
		if err != nil {
			return TransferResult{}, fmt.Errorf("execute topic submit: %w", err)
		}

		receipt, err := resp.GetReceipt(c.client)
		if err != nil {
			return TransferResult{}, fmt.Errorf("topic submit receipt: %w", err)
		}
		res := TransferResult{
			TransactionID: resp.TransactionID.String(),
			Status:        receipt.Status.String(),
		}
		if receipt.Status != hiero.StatusSuccess {
			return res, fmt.Errorf("topic submit status %s", receipt.Status)
		}
		return res, nil
	})
	if c.metrics != nil {
		c.metrics.ObserveLedgerSubmit("topic_message", submitStatus(err), time.Since(start))
	}
	if err != nil {
		return "", err
	}
	return result.TransactionID, nil
}

func submitStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// submit runs one network submission through the circuit breaker. The SDK
// does not thread a context through Execute, so cancellation is checked at
// the boundary only.
func (c *LedgerClient) submit(ctx context.Context, op func() (TransferResult, error)) (TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return TransferResult{}, err
	}
	result, err := c.breaker.Execute(circuitbreaker.ServiceHederaNetwork, func() (interface{}, error) {
		res, err := op()
		if err != nil {
			return res, err
		}
		return res, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result.(TransferResult), nil
}

// Close releases the underlying network client.
func (c *LedgerClient) Close() error {
	return c.client.Close()
}

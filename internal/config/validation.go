package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/MeridianProtocol/server/internal/money"
)

// entityIDPattern matches Hedera entity IDs: shard.realm.num.
var entityIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IsEntityID reports whether s is a well-formed Hedera entity ID.
func IsEntityID(s string) bool {
	return entityIDPattern.MatchString(s)
}

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	// Apply defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Protocol.SourceToken.Code == "" {
		c.Protocol.SourceToken.Code = "MUSD"
	}
	if c.Protocol.DestinationToken.Code == "" {
		c.Protocol.DestinationToken.Code = "USDC"
	}

	if err := c.validate(); err != nil {
		return err
	}

	// Register the configured tokens so settlement math picks up the
	// deployment's decimals and token IDs.
	for _, tok := range []TokenConfig{c.Protocol.SourceToken, c.Protocol.DestinationToken} {
		if err := money.RegisterAsset(money.Asset{
			Code:     tok.Code,
			Decimals: tok.Decimals,
			TokenID:  tok.TokenID,
		}); err != nil {
			return fmt.Errorf("register asset %s: %w", tok.Code, err)
		}
	}

	return nil
}

// validate rejects configurations the settlement engine must never run with.
func (c *Config) validate() error {
	switch c.Hedera.Network {
	case "mainnet", "testnet", "previewnet":
	default:
		return fmt.Errorf("hedera.network must be mainnet, testnet, or previewnet, got %q", c.Hedera.Network)
	}

	if c.Hedera.MirrorBaseURL == "" {
		return fmt.Errorf("hedera.mirror_base_url is required")
	}
	if u, err := url.Parse(c.Hedera.MirrorBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("hedera.mirror_base_url is not a valid URL: %q", c.Hedera.MirrorBaseURL)
	}

	for name, id := range map[string]string{
		"protocol.source_token.token_id":      c.Protocol.SourceToken.TokenID,
		"protocol.destination_token.token_id": c.Protocol.DestinationToken.TokenID,
		"protocol.collection_account":         c.Protocol.CollectionAccount,
		"protocol.liquidity_account":          c.Protocol.LiquidityAccount,
		"protocol.audit_topic_id":             c.Protocol.AuditTopicID,
		"oracle.topic_id":                     c.Oracle.TopicID,
	} {
		if id == "" {
			return fmt.Errorf("%s is required", name)
		}
		if !entityIDPattern.MatchString(id) {
			return fmt.Errorf("%s is not a valid entity ID: %q", name, id)
		}
	}

	if c.Hedera.OperatorAccountID != "" && !entityIDPattern.MatchString(c.Hedera.OperatorAccountID) {
		return fmt.Errorf("hedera.operator_account_id is not a valid entity ID: %q", c.Hedera.OperatorAccountID)
	}

	if c.Protocol.FeeBasisPoints < 0 || c.Protocol.FeeBasisPoints >= 10_000 {
		return fmt.Errorf("protocol.fee_basis_points must be in [0, 10000), got %d", c.Protocol.FeeBasisPoints)
	}

	// Settlement converts source tiny units up to destination precision.
	// A destination with fewer decimals would force lossy downscaling, so
	// the whole configuration is rejected at startup.
	if c.Protocol.DestinationToken.Decimals < c.Protocol.SourceToken.Decimals {
		return fmt.Errorf("destination token decimals (%d) must be >= source token decimals (%d)",
			c.Protocol.DestinationToken.Decimals, c.Protocol.SourceToken.Decimals)
	}

	minTiny, err := money.ToTinyUnits(c.Protocol.MinWithdrawal, c.Protocol.SourceToken.Decimals)
	if err != nil {
		return fmt.Errorf("protocol.min_withdrawal: %w", err)
	}
	maxTiny, err := money.ToTinyUnits(c.Protocol.MaxWithdrawal, c.Protocol.SourceToken.Decimals)
	if err != nil {
		return fmt.Errorf("protocol.max_withdrawal: %w", err)
	}
	if minTiny <= 0 {
		return fmt.Errorf("protocol.min_withdrawal must be positive")
	}
	if maxTiny <= minTiny {
		return fmt.Errorf("protocol.max_withdrawal (%s) must exceed min_withdrawal (%s)",
			c.Protocol.MaxWithdrawal, c.Protocol.MinWithdrawal)
	}

	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("verification.max_attempts must be at least 1")
	}
	if c.Verification.InitialBackoff.Duration <= 0 {
		return fmt.Errorf("verification.initial_backoff must be positive")
	}
	if c.Verification.LookbackWindow.Duration <= c.Verification.ClockSkewBuffer.Duration {
		return fmt.Errorf("verification.lookback_window must exceed clock_skew_buffer")
	}

	switch strings.ToLower(c.Journal.Backend) {
	case "", "memory":
	case "postgres":
		if c.Journal.PostgresURL == "" {
			return fmt.Errorf("journal.postgres_url is required for the postgres backend")
		}
	case "mongodb":
		if c.Journal.MongoDBURL == "" {
			return fmt.Errorf("journal.mongodb_url is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("journal.backend must be memory, postgres, or mongodb, got %q", c.Journal.Backend)
	}

	if c.Monitoring.LowBalanceAlertURL != "" {
		if _, err := money.ToTinyUnits(c.Monitoring.LowBalanceThreshold, c.Protocol.DestinationToken.Decimals); err != nil {
			return fmt.Errorf("monitoring.low_balance_threshold: %w", err)
		}
	}

	return nil
}

// MinWithdrawalTiny returns the lower redemption bound in source tiny units.
// Call only after Load succeeds.
func (c *Config) MinWithdrawalTiny() int64 {
	tiny, _ := money.ToTinyUnits(c.Protocol.MinWithdrawal, c.Protocol.SourceToken.Decimals)
	return tiny
}

// MaxWithdrawalTiny returns the upper redemption bound in source tiny units.
func (c *Config) MaxWithdrawalTiny() int64 {
	tiny, _ := money.ToTinyUnits(c.Protocol.MaxWithdrawal, c.Protocol.SourceToken.Decimals)
	return tiny
}

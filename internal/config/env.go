package config

import (
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use MERIDIAN_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "MERIDIAN_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "MERIDIAN_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "MERIDIAN_ADMIN_METRICS_API_KEY")

	// Normalize route prefix: ensure it starts with / and doesn't end with /
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "MERIDIAN_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "MERIDIAN_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "MERIDIAN_ENVIRONMENT")

	// Hedera config. The operator private key is env-only so it never lands
	// in a config file checked into version control.
	setIfEnv(&c.Hedera.Network, "MERIDIAN_HEDERA_NETWORK")
	setIfEnv(&c.Hedera.MirrorBaseURL, "MERIDIAN_MIRROR_BASE_URL")
	setDurationIfEnv(&c.Hedera.MirrorTimeout, "MERIDIAN_MIRROR_TIMEOUT")
	setIfEnv(&c.Hedera.OperatorAccountID, "MERIDIAN_OPERATOR_ACCOUNT_ID")
	setIfEnv(&c.Hedera.OperatorPrivateKey, "MERIDIAN_OPERATOR_PRIVATE_KEY")

	// Protocol config
	setIfEnv(&c.Protocol.SourceToken.TokenID, "MERIDIAN_SOURCE_TOKEN_ID")
	setIfEnv(&c.Protocol.DestinationToken.TokenID, "MERIDIAN_DESTINATION_TOKEN_ID")
	setIfEnv(&c.Protocol.CollectionAccount, "MERIDIAN_COLLECTION_ACCOUNT")
	setIfEnv(&c.Protocol.LiquidityAccount, "MERIDIAN_LIQUIDITY_ACCOUNT")
	setIfEnv(&c.Protocol.AuditTopicID, "MERIDIAN_AUDIT_TOPIC_ID")
	setIfEnv(&c.Protocol.MinWithdrawal, "MERIDIAN_MIN_WITHDRAWAL")
	setIfEnv(&c.Protocol.MaxWithdrawal, "MERIDIAN_MAX_WITHDRAWAL")
	setInt64IfEnv(&c.Protocol.FeeBasisPoints, "MERIDIAN_FEE_BASIS_POINTS")

	// Oracle config
	setIfEnv(&c.Oracle.TopicID, "MERIDIAN_RATE_TOPIC_ID")
	setDurationIfEnv(&c.Oracle.RequestTimeout, "MERIDIAN_ORACLE_REQUEST_TIMEOUT")

	// Verification config
	setIntIfEnv(&c.Verification.MaxAttempts, "MERIDIAN_VERIFY_MAX_ATTEMPTS")
	setDurationIfEnv(&c.Verification.InitialBackoff, "MERIDIAN_VERIFY_INITIAL_BACKOFF")
	setDurationIfEnv(&c.Verification.MaxBackoff, "MERIDIAN_VERIFY_MAX_BACKOFF")
	setDurationIfEnv(&c.Verification.LookbackWindow, "MERIDIAN_VERIFY_LOOKBACK_WINDOW")
	setDurationIfEnv(&c.Verification.ClockSkewBuffer, "MERIDIAN_VERIFY_CLOCK_SKEW_BUFFER")

	// Journal config
	setIfEnv(&c.Journal.Backend, "MERIDIAN_JOURNAL_BACKEND")
	setIfEnv(&c.Journal.PostgresURL, "MERIDIAN_JOURNAL_POSTGRES_URL")
	setIfEnv(&c.Journal.MongoDBURL, "MERIDIAN_JOURNAL_MONGODB_URL")
	setIfEnv(&c.Journal.MongoDBDatabase, "MERIDIAN_JOURNAL_MONGODB_DATABASE")
	setIfEnv(&c.Journal.MongoDBCollection, "MERIDIAN_JOURNAL_MONGODB_COLLECTION")

	// Notification config
	setIfEnv(&c.Notifications.WithdrawalURL, "MERIDIAN_NOTIFY_WITHDRAWAL_URL")
	setDurationIfEnv(&c.Notifications.Timeout, "MERIDIAN_NOTIFY_TIMEOUT")
	loadHeaderEnv(&c.Notifications.Headers, "MERIDIAN_NOTIFY_HEADER_")

	// Monitoring config
	setIfEnv(&c.Monitoring.LowBalanceAlertURL, "MERIDIAN_MONITORING_ALERT_URL")
	setIfEnv(&c.Monitoring.LowBalanceThreshold, "MERIDIAN_MONITORING_LOW_BALANCE_THRESHOLD")
	setDurationIfEnv(&c.Monitoring.CheckInterval, "MERIDIAN_MONITORING_CHECK_INTERVAL")
	setDurationIfEnv(&c.Monitoring.Timeout, "MERIDIAN_MONITORING_TIMEOUT")
	loadHeaderEnv(&c.Monitoring.Headers, "MERIDIAN_MONITORING_HEADER_")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*target = parsed
		}
	}
}

// setInt64IfEnv sets an int64 pointer from an environment variable.
func setInt64IfEnv(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = parsed
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// loadHeaderEnv collects HTTP headers from prefixed environment variables.
// MERIDIAN_NOTIFY_HEADER_X_SIGNING_KEY=abc -> "X-Signing-Key: abc"
func loadHeaderEnv(target *map[string]string, prefix string) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimPrefix(parts[0], prefix)
		if name == "" {
			continue
		}
		if *target == nil {
			*target = make(map[string]string)
		}
		headerName := textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(name, "_", "-"))
		(*target)[headerName] = parts[1]
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}

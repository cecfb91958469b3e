// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		missing = append(missing, "REDIS_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return c.Policy.Validate()
}

// Validate rejects policy values that would break the wallet rules.
func (p PolicyConfig) Validate() error {
	hundred := decimal.NewFromInt(100)
	switch {
	case p.MinDeposit.IsNegative():
		return fmt.Errorf("MIN_DEPOSIT must not be negative")
	case p.MinWithdrawal.IsNegative():
		return fmt.Errorf("MIN_WITHDRAWAL must not be negative")
	case !p.AutoApproveCeiling.IsPositive():
		return fmt.Errorf("AUTO_APPROVE_CEILING must be positive")
	case p.DepositFeePercent.IsNegative() || p.DepositFeePercent.GreaterThanOrEqual(hundred):
		return fmt.Errorf("DEPOSIT_FEE_PERCENT must be in [0,100)")
	case p.WithdrawalFeePercent.IsNegative() || p.WithdrawalFeePercent.GreaterThanOrEqual(hundred):
		return fmt.Errorf("WITHDRAWAL_FEE_PERCENT must be in [0,100)")
	case p.DefaultProfitPercent.IsNegative() || p.DefaultProfitPercent.GreaterThan(hundred):
		return fmt.Errorf("DEFAULT_PROFIT_PERCENT must be in [0,100]")
	}
	return nil
}

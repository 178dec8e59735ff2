package core

import (
	"fmt"
	"slices"
	"strings"
)

type NormalizerConfig struct {
	LowercaseFields []string `koanf:"lowercase_fields" mapstructure:"lowercase_fields"`
}

type FrameworkConfig struct {
	Fields          []string `koanf:"fields" mapstructure:"fields"`
	MandatoryFields []string `koanf:"mandatory_fields" mapstructure:"mandatory_fields"`
}

// CustodianConfig is the static custodian fallback used when no
// CustodianChannelProvider is wired.
type CustodianConfig struct {
	Channel   string `koanf:"channel" mapstructure:"channel"`
	RootOrgID string `koanf:"root_org_id" mapstructure:"root_org_id"`
}

type OutboxConfig struct {
	BatchSize   int `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Normalizer  NormalizerConfig `koanf:"normalizer" mapstructure:"normalizer"`
	Framework   FrameworkConfig  `koanf:"framework" mapstructure:"framework"`
	Custodian   CustodianConfig  `koanf:"custodian" mapstructure:"custodian"`
	Outbox      OutboxConfig     `koanf:"outbox" mapstructure:"outbox"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "accounts",
		Normalizer: NormalizerConfig{
			LowercaseFields: []string{"email", "recovery_email", "username", "login_id"},
		},
		Framework: FrameworkConfig{
			Fields:          []string{"id", "board", "medium", "grade_level", "subject"},
			MandatoryFields: []string{"id"},
		},
		Outbox: OutboxConfig{
			BatchSize:   50,
			MaxAttempts: 5,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for _, field := range c.Framework.MandatoryFields {
		if !slices.Contains(c.Framework.Fields, field) {
			return fmt.Errorf("core: framework mandatory field %q is not a supported field", field)
		}
	}
	if c.Outbox.BatchSize < 0 || c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("core: outbox batch_size and max_attempts must be >= 0")
	}
	return nil
}

func (c Config) lowercases(field string) bool {
	return slices.Contains(c.Normalizer.LowercaseFields, field)
}

// Package config loads reconciler configuration from YAML with
// environment overrides for the deployment-level knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sondrmsk/divrec/internal/domain"
)

// FieldSpec declares how one normalized field is sourced from the raw
// columns of each dataset. The first non-empty source column wins, as
// heterogeneous feeds name the same field differently.
type FieldSpec struct {
	Name         string           `yaml:"name"`
	Kind         domain.FieldKind `yaml:"kind"`
	Required     bool             `yaml:"required"`
	Origin       []string         `yaml:"origin"`
	Counterparty []string         `yaml:"counterparty"`
}

// Tolerance declares when two numeric values count as equal. A value
// differs only when it exceeds both bounds.
type Tolerance struct {
	Absolute float64 `yaml:"absolute"`
	Relative float64 `yaml:"relative"`
}

// SeverityPolicy holds the thresholds the classifier applies to field
// deltas. Monetary thresholds are in USD.
type SeverityPolicy struct {
	MinorAmountUSD float64  `yaml:"minor_amount_usd"`
	MajorAmountUSD float64  `yaml:"major_amount_usd"`
	CriticalFields []string `yaml:"critical_fields"`
	// CurrencyField names the field whose value gives the currency used
	// to express monetary deltas in USD. Empty disables conversion.
	CurrencyField string `yaml:"currency_field"`
}

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	Workers    int    `yaml:"workers"`

	KeyFields  []string             `yaml:"key_fields"`
	FieldMap   []FieldSpec          `yaml:"field_map"`
	Tolerances map[string]Tolerance `yaml:"tolerances"`
	Severity   SeverityPolicy       `yaml:"severity"`

	// Knowledge retrieval.
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`

	// Diagnoser escalation.
	EscalateAfter     int           `yaml:"escalate_after"`
	EscalationTimeout time.Duration `yaml:"escalation_timeout"`
}

// Default returns the configuration mirroring the dividend booking feeds
// this system was built for. Callers usually start here and overlay a
// YAML file.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DBPath:     "divrec.db",
		Workers:    4,

		KeyFields: []string{"event_key", "isin", "bank_account"},
		FieldMap: []FieldSpec{
			{Name: "event_key", Kind: domain.FieldIdentifier, Required: true,
				Origin: []string{"COAC_EVENT_KEY", "EVENT_KEY"}, Counterparty: []string{"EVENT_KEY", "COAC_EVENT_KEY"}},
			{Name: "isin", Kind: domain.FieldIdentifier, Required: true,
				Origin: []string{"ISIN"}, Counterparty: []string{"ISIN"}},
			{Name: "sedol", Kind: domain.FieldIdentifier,
				Origin: []string{"SEDOL"}, Counterparty: []string{"SEDOL"}},
			{Name: "ticker", Kind: domain.FieldIdentifier,
				Origin: []string{"TICKER"}, Counterparty: []string{"TICKER"}},
			{Name: "organisation_name", Kind: domain.FieldText,
				Origin: []string{"ORGANISATION_NAME", "SECURITY_NAME"}, Counterparty: []string{"ORGANISATION_NAME", "INSTRUMENT_DESCRIPTION", "NAME"}},
			{Name: "bank_account", Kind: domain.FieldIdentifier,
				Origin: []string{"BANK_ACCOUNT", "BANK_ACCOUNTS"}, Counterparty: []string{"BANK_ACCOUNT", "BANK_ACCOUNTS"}},
			{Name: "custodian", Kind: domain.FieldText,
				Origin: []string{"CUSTODIAN", "CUSTODIAN_NAME"}, Counterparty: []string{"CUSTODIAN", "CUSTODIAN_NAME"}},
			{Name: "dividends_per_share", Kind: domain.FieldAmount,
				Origin: []string{"DIVIDENDS_PER_SHARE"}, Counterparty: []string{"DIVIDENDS_PER_SHARE", "DIV_RATE"}},
			{Name: "holding_quantity", Kind: domain.FieldAmount,
				Origin: []string{"HOLDING_QUANTITY"}, Counterparty: []string{"HOLDING_QUANTITY", "NOMINAL_BASIS"}},
			{Name: "ex_date", Kind: domain.FieldDate,
				Origin: []string{"EX_DATE"}, Counterparty: []string{"EX_DATE"}},
			{Name: "payment_date", Kind: domain.FieldDate,
				Origin: []string{"PAYMENT_DATE", "PAY_DATE"}, Counterparty: []string{"PAY_DATE", "EVENT_PAYMENT_DATE"}},
			{Name: "quotation_currency", Kind: domain.FieldIdentifier,
				Origin: []string{"QUOTATION_CURRENCY"}, Counterparty: []string{"QUOTATION_CURRENCY"}},
			{Name: "settlement_currency", Kind: domain.FieldIdentifier,
				Origin: []string{"SETTLEMENT_CURRENCY", "SETTLED_CURRENCY"}, Counterparty: []string{"SETTLEMENT_CCY", "SETTLEMENT_CURRENCY"}},
			{Name: "gross_amount_quotation", Kind: domain.FieldAmount,
				Origin: []string{"GROSS_AMOUNT_QUOTATION"}, Counterparty: []string{"GROSS_AMOUNT", "GROSS_AMOUNT_QUOTATION"}},
			{Name: "net_amount_quotation", Kind: domain.FieldAmount,
				Origin: []string{"NET_AMOUNT_QUOTATION"}, Counterparty: []string{"NET_AMOUNT_QC", "NET_AMOUNT_QUOTATION"}},
			{Name: "net_amount_settlement", Kind: domain.FieldAmount,
				Origin: []string{"NET_AMOUNT_SETTLEMENT"}, Counterparty: []string{"NET_AMOUNT_SC", "NET_AMOUNT_SETTLEMENT"}},
			{Name: "tax_rate", Kind: domain.FieldAmount,
				Origin: []string{"TAX_RATE"}, Counterparty: []string{"TAX_RATE", "WTHTAX_RATE"}},
			{Name: "tax", Kind: domain.FieldAmount,
				Origin: []string{"TAX"}, Counterparty: []string{"TAX", "WTHTAX_COST"}},
		},
		Tolerances: map[string]Tolerance{
			// FX rounding shows up in settlement amounts.
			"net_amount_settlement":  {Absolute: 0.01, Relative: 0.0001},
			"net_amount_quotation":   {Absolute: 0.01, Relative: 0.0001},
			"gross_amount_quotation": {Absolute: 0.01, Relative: 0.0001},
			"dividends_per_share":    {Absolute: 0.0001},
		},
		Severity: SeverityPolicy{
			MinorAmountUSD: 10,
			MajorAmountUSD: 1000,
			CriticalFields: []string{"isin", "bank_account", "quotation_currency"},
			CurrencyField:  "settlement_currency",
		},

		TopK:          3,
		MinSimilarity: 0.35,

		EscalateAfter:     3,
		EscalationTimeout: 2 * time.Second,
	}
}

// Load reads a YAML config file over the defaults, then applies PORT and
// DB_PATH environment overrides. A missing path returns pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the pipeline depends on.
func (c *Config) Validate() error {
	if len(c.KeyFields) == 0 {
		return fmt.Errorf("config: key_fields must not be empty")
	}
	if len(c.FieldMap) == 0 {
		return fmt.Errorf("config: field_map must not be empty")
	}
	mapped := make(map[string]bool, len(c.FieldMap))
	for _, fs := range c.FieldMap {
		if fs.Name == "" {
			return fmt.Errorf("config: field_map entry without a name")
		}
		if len(fs.Origin) == 0 || len(fs.Counterparty) == 0 {
			// A field must be mappable on both sides to survive
			// normalization; a one-sided mapping is a config mistake.
			return fmt.Errorf("config: field %q must map columns for both sources", fs.Name)
		}
		mapped[fs.Name] = true
	}
	for _, kf := range c.KeyFields {
		if !mapped[kf] {
			return fmt.Errorf("config: key field %q is not in the field map", kf)
		}
	}
	if c.Severity.MinorAmountUSD <= 0 || c.Severity.MajorAmountUSD <= c.Severity.MinorAmountUSD {
		return fmt.Errorf("config: severity thresholds must satisfy 0 < minor < major")
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.TopK < 1 {
		c.TopK = 1
	}
	return nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	OCR         OCRConfig         `yaml:"ocr" mapstructure:"ocr"`
	Spreadsheet SpreadsheetConfig `yaml:"spreadsheet" mapstructure:"spreadsheet"`
	Lookup      LookupConfig      `yaml:"lookup" mapstructure:"lookup"`
	Compliance  ComplianceConfig  `yaml:"compliance" mapstructure:"compliance"`
	Report      ReportConfig      `yaml:"report" mapstructure:"report"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath   string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey      string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel    string  `yaml:"mistral_model" mapstructure:"mistral_model"`
	MistralRPS      float64 `yaml:"mistral_rps" mapstructure:"mistral_rps"`
	Cache           bool    `yaml:"cache" mapstructure:"cache"`
	WarmConcurrency int     `yaml:"warm_concurrency" mapstructure:"warm_concurrency"`
}

// SpreadsheetConfig locates the master contract list and the AVD workbooks.
type SpreadsheetConfig struct {
	MasterListPath     string `yaml:"master_list_path" mapstructure:"master_list_path"`
	AVDDir             string `yaml:"avd_dir" mapstructure:"avd_dir"`
	MasterContractCol  int    `yaml:"master_contract_col" mapstructure:"master_contract_col"`
	MasterReferenceCol int    `yaml:"master_reference_col" mapstructure:"master_reference_col"`
	AVDTotalColDefault int    `yaml:"avd_total_col_default" mapstructure:"avd_total_col_default"`
}

// LookupConfig tunes retries and circuit breaking around spreadsheet access.
type LookupConfig struct {
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs   int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ComplianceConfig configures the rule engine.
type ComplianceConfig struct {
	AmountTolerance      float64 `yaml:"amount_tolerance" mapstructure:"amount_tolerance"`
	EnforceProtestAmount bool    `yaml:"enforce_protest_amount" mapstructure:"enforce_protest_amount"`
	CadinEmail           string  `yaml:"cadin_email" mapstructure:"cadin_email"`
}

// ReportConfig configures the case ledger.
type ReportConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the decision history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API. Evidence paths in requests must
// resolve inside EvidenceRoot. An empty AllowedOrigins disables CORS.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	EvidenceRoot   string   `yaml:"evidence_root" mapstructure:"evidence_root"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CASEAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "pixtral-large-latest")
	v.SetDefault("ocr.mistral_rps", 1.0)
	v.SetDefault("ocr.cache", true)
	v.SetDefault("ocr.warm_concurrency", 4)
	v.SetDefault("spreadsheet.master_list_path", "Contratos Rescindidos - REN 1125.xlsx")
	v.SetDefault("spreadsheet.avd_dir", "AVDs complementares")
	v.SetDefault("spreadsheet.master_contract_col", 2)
	v.SetDefault("spreadsheet.master_reference_col", 0)
	v.SetDefault("spreadsheet.avd_total_col_default", 10)
	v.SetDefault("lookup.retry_attempts", 3)
	v.SetDefault("lookup.retry_backoff_ms", 250)
	v.SetDefault("lookup.breaker_threshold", 5)
	v.SetDefault("lookup.breaker_reset_secs", 30)
	v.SetDefault("compliance.amount_tolerance", 1.0)
	v.SetDefault("compliance.enforce_protest_amount", false)
	v.SetDefault("compliance.cadin_email", "inadimplentes.saf@aneel.gov.br")
	v.SetDefault("report.path", "case_report.csv")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "caseaudit.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.evidence_root", "")
	v.SetDefault("server.allowed_origins", []string{})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "evaluate" (spreadsheet-backed evaluation), "serve" and "report".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Compliance.AmountTolerance <= 0 {
		errs = append(errs, "compliance.amount_tolerance must be > 0")
	}
	if c.Spreadsheet.MasterContractCol < 0 || c.Spreadsheet.MasterReferenceCol < 0 || c.Spreadsheet.AVDTotalColDefault < 0 {
		errs = append(errs, "spreadsheet column indexes must be >= 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "evaluate":
		if c.Spreadsheet.MasterListPath == "" {
			errs = append(errs, "spreadsheet.master_list_path is required")
		}
		if c.Spreadsheet.AVDDir == "" {
			errs = append(errs, "spreadsheet.avd_dir is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if strings.TrimSpace(c.Server.EvidenceRoot) == "" {
			errs = append(errs, "server.evidence_root is required")
		}
	case "report":
		if c.Report.Path == "" {
			errs = append(errs, "report.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

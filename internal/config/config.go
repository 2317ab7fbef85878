package config

import (
	"time"
)

type StoreCfg struct {
	DataRoot     string        `mapstructure:"data_root"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type ProbeCfg struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	VerifyTLS    bool          `mapstructure:"verify_tls"`
}

type AlertCfg struct {
	Tick             time.Duration `mapstructure:"tick"`
	DownAfter        time.Duration `mapstructure:"down_after"`
	RecoveredAfter   time.Duration `mapstructure:"recovered_after"`
	RepeatUnder24h   time.Duration `mapstructure:"repeat_under_24h"`
	Repeat24hTo72h   time.Duration `mapstructure:"repeat_24h_to_72h"`
	DailyAfter       time.Duration `mapstructure:"daily_after"`
	DailyHourLocal   int           `mapstructure:"daily_hour_local"`
	DailyMinuteLocal int           `mapstructure:"daily_minute_local"`
	SubjPrefix       string        `mapstructure:"subj_prefix"`
	PublicBaseURL    string        `mapstructure:"public_base_url"`
}

type SMTPCfg struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type WebhookCfg struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerCfg struct {
	APIAddr     string `mapstructure:"api_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type OTelCfg struct {
	Enable       bool    `mapstructure:"enable"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
}

type Config struct {
	Store    StoreCfg   `mapstructure:"store"`
	Probe    ProbeCfg   `mapstructure:"probe"`
	Alert    AlertCfg   `mapstructure:"alert"`
	SMTP     SMTPCfg    `mapstructure:"smtp"`
	Webhook  WebhookCfg `mapstructure:"webhook"`
	Server   ServerCfg  `mapstructure:"server"`
	OTel     OTelCfg    `mapstructure:"otel"`
	LogLevel string     `mapstructure:"log_level"`
}

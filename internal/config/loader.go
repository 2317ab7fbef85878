package config

import (
	"strings"

	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("store.data_root", "./data")
	v.SetDefault("store.query_timeout", "5s")

	v.SetDefault("probe.timeout", "45s")
	v.SetDefault("probe.user_agent", "WebsiteMonitor")
	v.SetDefault("probe.max_redirects", 12)
	v.SetDefault("probe.max_body_bytes", 524288)
	v.SetDefault("probe.verify_tls", false)

	v.SetDefault("alert.tick", "15s")
	v.SetDefault("alert.down_after", "180s")
	v.SetDefault("alert.recovered_after", "60s")
	v.SetDefault("alert.repeat_under_24h", "1800s")
	v.SetDefault("alert.repeat_24h_to_72h", "3600s")
	v.SetDefault("alert.daily_after", "72h")
	v.SetDefault("alert.daily_hour_local", 10)
	v.SetDefault("alert.daily_minute_local", 0)
	v.SetDefault("alert.subj_prefix", "[WebsiteMonitor]")
	v.SetDefault("alert.public_base_url", "")

	v.SetDefault("smtp.timeout", "15s")
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("server.api_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":8081")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "monitord")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log_level", "info")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

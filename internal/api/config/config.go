package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg，环境变量 CADENCE_* 可覆盖文件值
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("kafka.client_id", "cadence")
	v.SetDefault("kafka.consumer.initial_offset", "oldest")

	v.SetDefault("insights.timeout", 15)
	v.SetDefault("insights.max_concurrency", 4)
	v.SetDefault("insights.rate_per_second", 2.0)
	v.SetDefault("insights.max_retries", 3)

	v.SetDefault("scheduler.timezone", "Local")
	v.SetDefault("scheduler.platforms", []string{"instagram", "facebook"})
	v.SetDefault("scheduler.analysis_cron", "0 0 3 * * *")
	v.SetDefault("scheduler.janitor_cron", "0 */30 * * * *")
	v.SetDefault("scheduler.recent_posts_count", 50)
	v.SetDefault("scheduler.per_platform_daily_cap", 2)
	v.SetDefault("scheduler.min_days_between_reposts", 30)
	v.SetDefault("scheduler.min_performance_score", 50.0)
	v.SetDefault("scheduler.nudge_factor", 0.5)
	v.SetDefault("scheduler.grace_window_hours", 24)
	v.SetDefault("scheduler.size_tolerance_pct", 2.0)
	v.SetDefault("scheduler.top_slots_limit", 5)
	v.SetDefault("scheduler.store_timeout", 10)
	v.SetDefault("scheduler.store_retries", 2)
	v.SetDefault("scheduler.post_offsets_minutes", map[string]int{
		"instagram": 30,
		"facebook":  45,
	})
}

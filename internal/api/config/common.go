package config

// Config 配置主体
type Config struct {
	Server                     ServerConfig               `mapstructure:"server"`
	DB                         DBConfig                   `mapstructure:"database"`
	Redis                      RedisConfig                `mapstructure:"redis"`
	Mongo                      MongoConfig                `mapstructure:"mongo"`
	MinIO                      MinIOConfig                `mapstructure:"minio"`
	Kafka                      KafkaConfig                `mapstructure:"kafka"`
	KafkaPublishResultConsumer KafkaPublishResultConsumer `mapstructure:"kafka_publish_result_consumer"`
	Insights                   InsightsConfig             `mapstructure:"insights"`
	Scheduler                  SchedulerConfig            `mapstructure:"scheduler"`
	LibPath                    LibPathConfig              `mapstructure:"lib_path"`
	Logstash                   LogstashConfig             `mapstructure:"logstash"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// MinIOConfig MinIO配置，媒体原件所在的桶
type MinIOConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	MediaBucket string `mapstructure:"media_bucket"`
	UseSSL      bool   `mapstructure:"use_ssl"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	ClientID string         `mapstructure:"client_id"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
	// InitialOffset 新消费组的起始位置：oldest 或 newest
	InitialOffset string `mapstructure:"initial_offset"`
}

// KafkaPublishResultConsumer 发布方回写结果的 topic
type KafkaPublishResultConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// InsightsConfig 平台数据网关
type InsightsConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	Token          string  `mapstructure:"token"`
	Timeout        int     `mapstructure:"timeout"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// SchedulerConfig 排期引擎参数
type SchedulerConfig struct {
	Timezone              string                       `mapstructure:"timezone"`
	Platforms             []string                     `mapstructure:"platforms"`
	AnalysisCron          string                       `mapstructure:"analysis_cron"`
	JanitorCron           string                       `mapstructure:"janitor_cron"`
	RecentPostsCount      int                          `mapstructure:"recent_posts_count"`
	PerPlatformDailyCap   int                          `mapstructure:"per_platform_daily_cap"`
	MinDaysBetweenReposts int                          `mapstructure:"min_days_between_reposts"`
	MinPerformanceScore   float64                      `mapstructure:"min_performance_score"`
	NudgeFactor           float64                      `mapstructure:"nudge_factor"`
	GraceWindowHours      int                          `mapstructure:"grace_window_hours"`
	SizeTolerancePct      float64                      `mapstructure:"size_tolerance_pct"`
	TopSlotsLimit         int                          `mapstructure:"top_slots_limit"`
	StoreTimeout          int                          `mapstructure:"store_timeout"`
	StoreRetries          int                          `mapstructure:"store_retries"`
	WeeklyTemplate        map[string]map[string]string `mapstructure:"weekly_template"`
	PostOffsetsMinutes    map[string]int               `mapstructure:"post_offsets_minutes"`
}

// LibPathConfig 库路径
type LibPathConfig struct {
	FFprobe string `mapstructure:"ffprobe"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration surface, loaded from an
// optional YAML file with environment variable overrides.
type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
	Auth      AuthConfig
	Redis     RedisConfig
	LogLevel  string
}

// ServerConfig controls the HTTP + WebSocket listener.
type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WorkerConfig sizes and paces the worker pool's dispatch loop.
type WorkerConfig struct {
	NumWorkers      int
	DequeueTimeout  time.Duration
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
}

// QueueConfig bounds the priority queue and its retry/backoff policy.
type QueueConfig struct {
	MaxSize             int
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryBackoffFactor  float64
	RateLimitRPS        int
}

// SchedulerConfig paces the periodic-task loop.
type SchedulerConfig struct {
	TickInterval time.Duration
	ErrorBackoff time.Duration
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// AuthConfig configures the HTTP surface's bearer-token and API-key auth.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// RedisConfig configures the optional event-transport mirror and task-store
// sidecar. Neither is required for the core's correctness; Enabled gates
// whether cmd/api-server wires them in at all.
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load reads config.yaml (if present) from the working directory, ./config,
// or /etc/taskqueue, applies defaults, and overlays TASKQUEUE_-prefixed
// environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskqueue")

	setDefaults()

	viper.SetEnvPrefix("TASKQUEUE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.adminport", 8081)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	viper.SetDefault("worker.numworkers", 10)
	viper.SetDefault("worker.dequeuetimeout", 1*time.Second)
	viper.SetDefault("worker.pollinterval", 100*time.Millisecond)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	viper.SetDefault("queue.maxsize", 0)
	viper.SetDefault("queue.retrymaxattempts", 3)
	viper.SetDefault("queue.retryinitialbackoff", 1*time.Second)
	viper.SetDefault("queue.retrymaxbackoff", 5*time.Minute)
	viper.SetDefault("queue.retrybackofffactor", 2.0)
	viper.SetDefault("queue.ratelimitrps", 1000)

	viper.SetDefault("scheduler.tickinterval", 1*time.Second)
	viper.SetDefault("scheduler.errorbackoff", 5*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 20)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("loglevel", "info")
}

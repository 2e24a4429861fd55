package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type HTTP struct {
	Host string
	Port int
}

type DB struct {
	Driver     string // "mysql" or "sqlite"
	Host       string
	Port       int
	User       string
	Pass       string
	Name       string
	SQLitePath string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	// Notify selects how poll wake-ups travel: "pubsub" uses native
	// Redis pub/sub, "polling" emulates it over plain keys for
	// providers that disable SUBSCRIBE.
	Notify string
}

type Queue struct {
	// MaxPollSeconds bounds the timeout a device may request on the
	// long-poll endpoint.
	MaxPollSeconds int
	// InstructionTimeoutSeconds is the default expiry for dispatched
	// instructions that do not carry their own.
	InstructionTimeoutSeconds int
}

type Sweep struct {
	Interval time.Duration
}

type Admin struct {
	Username string
	Password string
}

type Config struct {
	HTTP  HTTP
	DB    DB
	Redis Redis
	Queue Queue
	Sweep Sweep
	Admin Admin
	JWT   struct {
		Secret string
		Issuer string
		ExpMin int
	}
	LogLevel string
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9300)
	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "root")
	v.SetDefault("db.pass", "")
	v.SetDefault("db.name", "droidfleet")
	v.SetDefault("db.sqlite_path", "droidfleet.db")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.notify", "pubsub")
	v.SetDefault("queue.max_poll_seconds", 60)
	v.SetDefault("queue.instruction_timeout_seconds", 600)
	v.SetDefault("sweep.interval", "30s")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "admin123")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		HTTP: HTTP{Host: v.GetString("server.host"), Port: v.GetInt("server.port")},
		DB: DB{
			Driver:     v.GetString("db.driver"),
			Host:       v.GetString("db.host"),
			Port:       v.GetInt("db.port"),
			User:       v.GetString("db.user"),
			Pass:       v.GetString("db.pass"),
			Name:       v.GetString("db.name"),
			SQLitePath: v.GetString("db.sqlite_path"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Notify:   v.GetString("redis.notify"),
		},
		Queue: Queue{
			MaxPollSeconds:            v.GetInt("queue.max_poll_seconds"),
			InstructionTimeoutSeconds: v.GetInt("queue.instruction_timeout_seconds"),
		},
		Sweep:    Sweep{Interval: v.GetDuration("sweep.interval")},
		Admin:    Admin{Username: v.GetString("admin.username"), Password: v.GetString("admin.password")},
		LogLevel: v.GetString("log.level"),
	}
	cfg.JWT.Secret = v.GetString("jwt.secret")
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-secret"
	}
	cfg.JWT.Issuer = v.GetString("jwt.issuer")
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "droidfleet"
	}
	cfg.JWT.ExpMin = v.GetInt("jwt.exp_min")
	if cfg.JWT.ExpMin <= 0 {
		cfg.JWT.ExpMin = 60
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = 30 * time.Second
	}

	// Re-read the log level when the file changes on disk.
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg.LogLevel = v.GetString("log.level")
		if onLevelChange != nil {
			onLevelChange(cfg.LogLevel)
		}
	})
	v.WatchConfig()

	return cfg, nil
}

var onLevelChange func(level string)

// OnLogLevelChange registers a callback fired when the configured log
// level changes while the process is running.
func OnLogLevelChange(fn func(level string)) { onLevelChange = fn }

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/envelope"
)

type Config struct {
	Env      string // "dev" | "prod"
	LogLevel string // empty = environment default

	HTTPAddr string
	GRPCAddr string // empty = gRPC disabled

	// DB
	DBPath   string // e.g. "./data/portunus.db"
	SeedFile string // optional YAML fixtures applied at startup

	// EnvelopeKey is the shared controller secret, base64 or hex.
	EnvelopeKey string

	// Replay guard. Redis is used when RedisAddr is set, memory otherwise.
	ReplayTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Kafka ingress is enabled when brokers are set.
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string
	KafkaReplyTopic string

	// Heartbeat retention
	HeartbeatRetentionDays int // 0 = keep forever
	PruneIntervalHours     int // how often the pruner runs (default 6)

	AuditAvgWindow       int
	AuditOpenMatchWindow time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log.level", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("db.path", "./data/portunus.db")
	v.SetDefault("db.seed_file", "")
	v.SetDefault("envelope.key", "")
	v.SetDefault("replay.ttl", "10m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "portunus.controller.ops")
	v.SetDefault("kafka.group_id", "portunus-gatekeeper")
	v.SetDefault("kafka.reply_topic", "")
	v.SetDefault("heartbeat.retention_days", 30)
	v.SetDefault("heartbeat.prune_interval_hours", 6)
	v.SetDefault("audit.avg_window", 20)
	v.SetDefault("audit.open_match_window", "60s")
}

// flagKeys binds command-line flags to config keys.
var flagKeys = map[string]string{
	"env":          "env",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"grpc-addr":    "grpc.addr",
	"db-path":      "db.path",
	"seed-file":    "db.seed_file",
	"redis-addr":   "redis.addr",
	"kafka-broker": "kafka.brokers",
}

// Load resolves configuration from defaults, an optional YAML file given
// by --config, PORTUNUS_* environment variables and flags, in increasing
// precedence.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("portunus-server", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	fs.String("env", "dev", "runtime environment (dev|prod)")
	fs.String("log-level", "", "log level override")
	fs.String("http-addr", ":8080", "HTTP listen address")
	fs.String("grpc-addr", ":9090", "gRPC listen address, empty to disable")
	fs.String("db-path", "./data/portunus.db", "SQLite database path")
	fs.String("seed-file", "", "YAML fixtures to seed at startup")
	fs.String("redis-addr", "", "Redis address for the replay guard")
	fs.StringSlice("kafka-broker", nil, "Kafka broker addresses")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PORTUNUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	env := strings.ToLower(strings.TrimSpace(v.GetString("env")))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		Env:      env,
		LogLevel: v.GetString("log.level"),

		HTTPAddr: v.GetString("http.addr"),
		GRPCAddr: strings.TrimSpace(v.GetString("grpc.addr")),

		DBPath:   v.GetString("db.path"),
		SeedFile: strings.TrimSpace(v.GetString("db.seed_file")),

		EnvelopeKey: v.GetString("envelope.key"),

		ReplayTTL:     v.GetDuration("replay.ttl"),
		RedisAddr:     strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),

		KafkaBrokers:    splitList(v.GetStringSlice("kafka.brokers")),
		KafkaTopic:      v.GetString("kafka.topic"),
		KafkaGroupID:    v.GetString("kafka.group_id"),
		KafkaReplyTopic: v.GetString("kafka.reply_topic"),

		HeartbeatRetentionDays: nonNegative(v.GetInt("heartbeat.retention_days"), 30),
		PruneIntervalHours:     nonNegative(v.GetInt("heartbeat.prune_interval_hours"), 6),

		AuditAvgWindow:       v.GetInt("audit.avg_window"),
		AuditOpenMatchWindow: v.GetDuration("audit.open_match_window"),
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Key(); err != nil {
		errs = append(errs, fmt.Errorf("envelope.key: must be %d bytes, base64 or hex", envelope.KeySize))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http.addr: required"))
	}
	if c.ReplayTTL <= 0 {
		errs = append(errs, errors.New("replay.ttl: must be positive"))
	}
	if c.AuditAvgWindow < 1 {
		errs = append(errs, errors.New("audit.avg_window: must be at least 1"))
	}
	if c.AuditOpenMatchWindow <= 0 {
		errs = append(errs, errors.New("audit.open_match_window: must be positive"))
	}
	if len(c.KafkaBrokers) > 0 && (c.KafkaTopic == "" || c.KafkaGroupID == "") {
		errs = append(errs, errors.New("kafka: topic and group_id are required with brokers"))
	}
	return errors.Join(errs...)
}

// Key decodes the envelope key.
func (c Config) Key() ([]byte, error) {
	return envelope.ParseKey(c.EnvelopeKey)
}

func nonNegative(n, def int) int {
	if n < 0 {
		return def
	}
	return n
}

// splitList flattens comma-separated entries, which is how brokers arrive
// from the environment.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

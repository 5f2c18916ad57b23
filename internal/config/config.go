package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers understood by Load.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// MaxListLimit bounds users.listlimit.
const MaxListLimit = 1000

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr            string
		ShutdownTimeout time.Duration
	}
	Store struct {
		Driver string

		// redis
		Addr         string
		Password     string
		DB           int
		PoolSize     int
		DialTimeout  time.Duration
		ReadTimeout  time.Duration
		WriteTimeout time.Duration

		// sqlite
		Path string

		// s3
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Users struct {
		ListLimit int
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// a missing .env is fine; existing env vars win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("KVUSERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:3000")
	v.SetDefault("server.shutdowntimeout", "10s")

	v.SetDefault("store.driver", DriverRedis)
	v.SetDefault("store.addr", "127.0.0.1:6379")
	v.SetDefault("store.password", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.poolsize", 10)
	v.SetDefault("store.dialtimeout", "5s")
	v.SetDefault("store.readtimeout", "3s")
	v.SetDefault("store.writetimeout", "3s")
	v.SetDefault("store.path", "data/users.db")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.keyprefix", "users")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("users.listlimit", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks cross-field constraints that defaults cannot express.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverRedis:
		if strings.TrimSpace(c.Store.Addr) == "" {
			return fmt.Errorf("store addr is required for driver %q", c.Store.Driver)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store path is required for driver %q", c.Store.Driver)
		}
	case DriverS3:
		if strings.TrimSpace(c.Store.Bucket) == "" {
			return fmt.Errorf("store bucket is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Users.ListLimit <= 0 || c.Users.ListLimit > MaxListLimit {
		return fmt.Errorf("users list limit must be in 1..%d, got %d", MaxListLimit, c.Users.ListLimit)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

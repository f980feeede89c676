// Package config holds the server settings. Every flag can also be set from
// a DECLARE_* environment variable or an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/declare/engine"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "DECLARE"

type Config struct {
	Bind      string
	Port      int
	LogLevel  string
	LogFormat string
	PublicURL string

	GracePeriod     time.Duration
	KingDelay       time.Duration
	TurnTimeout     time.Duration
	EliminationLock string
	Seed            uint64

	RedisURL    string
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
}

// AddLogFlags registers the logging flags. They are shared by every command.
func (c *Config) AddLogFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: trace, debug, info, warn, error (env: DECLARE_LOG_LEVEL)")
	fs.StringVar(&c.LogFormat, "log-format", "text", "log format: text or json (env: DECLARE_LOG_FORMAT)")
}

// AddServeFlags registers the flags of the serve command.
func (c *Config) AddServeFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: DECLARE_BIND)")
	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: DECLARE_PORT)")
	fs.StringVar(&c.PublicURL, "public-url", "", "external base URL used in room QR codes (env: DECLARE_PUBLIC_URL)")
	fs.DurationVar(&c.GracePeriod, "grace-period", 5*time.Minute, "time an empty room survives before it is closed, 0 keeps it forever (env: DECLARE_GRACE_PERIOD)")
	fs.DurationVar(&c.KingDelay, "king-delay", 3*time.Second, "how long King-selected cards stay revealed before swapping (env: DECLARE_KING_DELAY)")
	fs.DurationVar(&c.TurnTimeout, "turn-timeout", 0, "forfeit an idle current player after this long, 0 disables (env: DECLARE_TURN_TIMEOUT)")
	fs.StringVar(&c.EliminationLock, "elimination-lock", string(engine.LockPerPlayer), "elimination limit: per-player or global (env: DECLARE_ELIMINATION_LOCK)")
	fs.Uint64Var(&c.Seed, "seed", 0, "fixed shuffle seed for every room, 0 picks one per room (env: DECLARE_SEED)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "redis URL for the action history, empty logs actions instead (env: DECLARE_REDIS_URL)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres URL for the results archive (env: DECLARE_DATABASE_URL)")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "secret for seat reconnect tokens, empty disables reconnects (env: DECLARE_JWT_SECRET)")
	fs.DurationVar(&c.TokenTTL, "token-ttl", 12*time.Hour, "lifetime of seat reconnect tokens (env: DECLARE_TOKEN_TTL)")
}

// Bind fills every flag the user did not set on the command line from the
// environment.
func Bind(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks the serve settings.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if _, err := engine.ParseEliminationLock(c.EliminationLock); err != nil {
		return err
	}
	durations := []struct {
		flag string
		d    time.Duration
	}{
		{"grace-period", c.GracePeriod},
		{"king-delay", c.KingDelay},
		{"turn-timeout", c.TurnTimeout},
		{"token-ttl", c.TokenTTL},
	}
	for _, f := range durations {
		if f.d < 0 {
			return fmt.Errorf("--%s must not be negative: %s", f.flag, f.d)
		}
	}
	if c.PublicURL != "" && !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		return fmt.Errorf("--public-url must start with http:// or https://: %q", c.PublicURL)
	}
	return nil
}

// Rules returns the default rules with the configured variants applied.
func (c *Config) Rules() (engine.Rules, error) {
	lock, err := engine.ParseEliminationLock(c.EliminationLock)
	if err != nil {
		return engine.Rules{}, err
	}
	r := engine.DefaultRules()
	r.EliminationLock = lock
	r.KingRevealDelay = c.KingDelay
	r.TurnTimeout = c.TurnTimeout
	return r, nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidDelay   = errors.New("reconnect delays must be positive and cap >= base")
	ErrInvalidRetries = errors.New("max retries must be >= 0")
	ErrMissingURL     = errors.New("authority url is required")
)

type Config struct {
	AuthorityURL string // push channel base, e.g. http://localhost:5000
	APIURL       string // request/response collaborator base

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectRetries   int

	AckTimeout time.Duration
	NoticeTTL  time.Duration
	PollWait   time.Duration

	DisableUpgrade     bool
	LeaderboardRefresh string // cron spec, empty disables

	StatusAddr string
	LogLevel   string
	LogFormat  string
}

func Default() Config {
	return Config{
		AuthorityURL:       "http://localhost:5000",
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  10 * time.Second,
		ReconnectRetries:   5,
		AckTimeout:         10 * time.Second,
		NoticeTTL:          5 * time.Second,
		PollWait:           25 * time.Second,
		StatusAddr:         "",
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Load reads an optional .env file and then the process environment.
// A missing .env is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests don't touch the process env.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	var err error

	c.AuthorityURL = str(getenv, "AUTHORITY_URL", c.AuthorityURL)
	c.APIURL = str(getenv, "API_URL", c.AuthorityURL)
	if c.ReconnectBaseDelay, err = dur(getenv, "RECONNECT_BASE_DELAY", c.ReconnectBaseDelay); err != nil {
		return Config{}, err
	}
	if c.ReconnectMaxDelay, err = dur(getenv, "RECONNECT_MAX_DELAY", c.ReconnectMaxDelay); err != nil {
		return Config{}, err
	}
	if c.ReconnectRetries, err = num(getenv, "RECONNECT_MAX_RETRIES", c.ReconnectRetries); err != nil {
		return Config{}, err
	}
	if c.AckTimeout, err = dur(getenv, "ACK_TIMEOUT", c.AckTimeout); err != nil {
		return Config{}, err
	}
	if c.NoticeTTL, err = dur(getenv, "NOTICE_TTL", c.NoticeTTL); err != nil {
		return Config{}, err
	}
	if c.PollWait, err = dur(getenv, "POLL_WAIT", c.PollWait); err != nil {
		return Config{}, err
	}
	if v := getenv("DISABLE_UPGRADE"); v != "" {
		if c.DisableUpgrade, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("DISABLE_UPGRADE: %w", err)
		}
	}
	c.LeaderboardRefresh = str(getenv, "LEADERBOARD_REFRESH", c.LeaderboardRefresh)
	c.StatusAddr = str(getenv, "STATUS_ADDR", c.StatusAddr)
	c.LogLevel = str(getenv, "LOG_LEVEL", c.LogLevel)
	c.LogFormat = str(getenv, "LOG_FORMAT", c.LogFormat)

	return c, c.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthorityURL) == "" {
		return ErrMissingURL
	}
	if c.ReconnectBaseDelay <= 0 || c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return ErrInvalidDelay
	}
	if c.ReconnectRetries < 0 {
		return ErrInvalidRetries
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ACK_TIMEOUT must be positive, got %s", c.AckTimeout)
	}
	return nil
}

func str(getenv func(string) string, k, d string) string {
	if v := strings.TrimSpace(getenv(k)); v != "" {
		return v
	}
	return d
}

// dur accepts Go durations ("1500ms") or bare milliseconds ("1500").
func dur(getenv func(string) string, k string, d time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(k))
	if v == "" {
		return d, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return out, nil
}

func num(getenv func(string) string, k string, d int) (int, error) {
	v := strings.TrimSpace(getenv(k))
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

// ServerConfig configures the reference authority.
type ServerConfig struct {
	Addr          string
	PollWait      time.Duration
	SessionIdle   time.Duration // zero derives it from PollWait
	AutoplayDelay time.Duration
	LogLevel      string
	LogFormat     string
}

func DefaultServer() ServerConfig {
	return ServerConfig{
		Addr:          ":5000",
		PollWait:      25 * time.Second,
		AutoplayDelay: time.Second,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// LoadServer is Load for the authority.
func LoadServer(files ...string) (ServerConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ServerConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return ServerFromEnv(os.Getenv)
}

func ServerFromEnv(getenv func(string) string) (ServerConfig, error) {
	c := DefaultServer()
	var err error

	c.Addr = str(getenv, "AUTHORITY_ADDR", c.Addr)
	if c.PollWait, err = dur(getenv, "POLL_WAIT", c.PollWait); err != nil {
		return ServerConfig{}, err
	}
	if c.SessionIdle, err = dur(getenv, "SESSION_IDLE", c.SessionIdle); err != nil {
		return ServerConfig{}, err
	}
	if c.AutoplayDelay, err = dur(getenv, "AUTOPLAY_DELAY", c.AutoplayDelay); err != nil {
		return ServerConfig{}, err
	}
	c.LogLevel = str(getenv, "LOG_LEVEL", c.LogLevel)
	c.LogFormat = str(getenv, "LOG_FORMAT", c.LogFormat)

	if c.PollWait <= 0 || c.AutoplayDelay <= 0 || c.SessionIdle < 0 {
		return ServerConfig{}, fmt.Errorf("server timings must be positive")
	}
	return c, nil
}

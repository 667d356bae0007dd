package app

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when present and no other file is named.
const DefaultEnvFile = ".env"

type Config struct {
	ClientID     string        `env:"BKPK_CLIENT_ID"`
	BaseURL      string        `env:"BKPK_BASE_URL"      envDefault:"https://bkpk.io"`
	APIURL       string        `env:"BKPK_API_URL"       envDefault:"https://api.bkpk.io"`
	CallbackPort int           `env:"BKPK_CALLBACK_PORT" envDefault:"8765"`
	Protocol     string        `env:"BKPK_PROTOCOL"      envDefault:"redirect"`
	Scopes       []string      `env:"BKPK_SCOPES"        envDefault:"avatars:read" envSeparator:","`
	Token        string        `env:"BKPK_TOKEN"`
	Verbose      bool          `env:"BKPK_VERBOSE"`
	Timeout      time.Duration `env:"BKPK_TIMEOUT"       envDefault:"5m"`

	Env       string `env:"ENV"        envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Dev DevConfig
}

// DevConfig configures the dev-provider command.
type DevConfig struct {
	Addr                string        `env:"BKPK_DEV_ADDR"          envDefault:":9000"`
	ClientIDs           []string      `env:"BKPK_DEV_CLIENT_IDS"    envDefault:"dev-client" envSeparator:","`
	Subject             string        `env:"BKPK_DEV_SUBJECT"       envDefault:"dev-user"`
	Issuer              string        `env:"BKPK_DEV_ISSUER"`
	TokenTTL            time.Duration `env:"BKPK_DEV_TOKEN_TTL"     envDefault:"1h"`
	CodeTTL             time.Duration `env:"BKPK_DEV_CODE_TTL"      envDefault:"10m"`
	AvatarSource        string        `env:"BKPK_DEV_AVATAR_SOURCE" envDefault:"https://cdn.bkpk.local/avatars/default.glb"`
	Relay               string        `env:"BKPK_DEV_RELAY"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD"  envDefault:"10s"`
}

// LoadConfig reads envFile into the process environment, then parses the
// environment. Variables already set win over the file. A missing
// DefaultEnvFile is not an error; a missing named file is.
func LoadConfig(envFile string) (Config, error) {
	name := envFile
	if name == "" {
		name = DefaultEnvFile
	}

	if err := godotenv.Load(name); err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", name, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

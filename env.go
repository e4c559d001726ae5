package llmresilience

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides, e.g. LLMR_AWS_REGION.
const EnvPrefix = "llmr"

// EnvOverrides are settings read from the environment (and an optional .env
// file) that take precedence over the YAML config.
type EnvOverrides struct {
	AWSProfile          string `envconfig:"AWS_PROFILE"`
	AWSSecondaryProfile string `envconfig:"AWS_SECONDARY_PROFILE"`
	AWSRegion           string `envconfig:"AWS_REGION"`
	LogGroup            string `envconfig:"LOG_GROUP"`
	GatewayHost         string `envconfig:"LITELLM_HOST"`
	GatewayPort         int    `envconfig:"LITELLM_PORT"`
	GatewayKey          string `envconfig:"LITELLM_API_KEY"`
	CRISModel           string `envconfig:"CRIS_MODEL"`
	HistoryBackend      string `envconfig:"HISTORY_BACKEND"`
	RedisAddr           string `envconfig:"REDIS_ADDR"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	ReportAddr          string `envconfig:"REPORT_ADDR"`
	LogMode             string `envconfig:"LOG_MODE"`
}

// LoadEnv reads overrides from the environment after loading envFile, if it
// exists. A missing envFile is not an error.
func LoadEnv(envFile string) (EnvOverrides, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return EnvOverrides{}, errors.Wrapf(err, "failed to load %s", envFile)
			}
		}
	}

	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return EnvOverrides{}, errors.Wrap(err, "failed to process environment")
	}
	return env, nil
}

// Apply copies every set override onto cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	override(&cfg.AWS.ProfileName, e.AWSProfile)
	override(&cfg.AWS.SecondaryProfileName, e.AWSSecondaryProfile)
	override(&cfg.AWS.RegionName, e.AWSRegion)
	override(&cfg.AWS.LogGroupName, e.LogGroup)
	override(&cfg.Gateway.Host, e.GatewayHost)
	override(&cfg.Gateway.APIKey, e.GatewayKey)
	override(&cfg.CRIS.ModelID, e.CRISModel)
	override(&cfg.History.Backend, e.HistoryBackend)
	override(&cfg.History.RedisAddr, e.RedisAddr)
	override(&cfg.History.PostgresDSN, e.PostgresDSN)
	override(&cfg.Report.Addr, e.ReportAddr)
	override(&cfg.Log.Mode, e.LogMode)
	if e.GatewayPort != 0 {
		cfg.Gateway.Port = e.GatewayPort
	}
}

// Load builds the effective config: the YAML file at path (or defaults when
// path is empty) overlaid with environment overrides.
func Load(path, envFile string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if path != "" {
		cfg, err = LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg.ApplyDefaults()
	}

	env, err := LoadEnv(envFile)
	if err != nil {
		return Config{}, err
	}
	env.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration after environment overrides")
	}
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

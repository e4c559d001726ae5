package llmresilience

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultProfile          = "default"
	DefaultSecondaryProfile = "default-secondary"
	DefaultRegion           = "us-east-1"
	DefaultLogGroup         = "BedrockModelInvocation"
	DefaultCRISModel        = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	DefaultGatewayHost      = "0.0.0.0"
	DefaultGatewayPort      = 4000
	DefaultGatewayKey       = "demo-key"
	DefaultFallbackAlias    = "claude-sonnet-fallback-demo"
	DefaultLoadBalanceAlias = "claude-sonnet-loadbalance-demo"
	DefaultMaxRequests      = 100
	DefaultMaxTokens        = 100
)

// Consumer types.
const (
	ConsumerNoisy  = "noisy"
	ConsumerNormal = "normal"
)

// History backends.
const (
	HistoryMemory   = "memory"
	HistoryRedis    = "redis"
	HistoryPostgres = "postgres"
)

var (
	regionPattern   = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)*-[0-9]+$`)
	logGroupPattern = regexp.MustCompile(`^[\w.\-/]+$`)
)

// Config is the top-level configuration.
type Config struct {
	AWS            AWSConfig        `yaml:"aws"`
	Gateway        GatewayConfig    `yaml:"litellm"`
	CRIS           CRISConfig       `yaml:"cris"`
	Deployments    []Deployment     `yaml:"model_list"`
	RouterSettings RouterSettings   `yaml:"router_settings"`
	Consumers      []ConsumerConfig `yaml:"consumers"`
	Dispatch       DispatchConfig   `yaml:"dispatch"`
	Sharding       ShardingConfig   `yaml:"sharding"`
	History        HistoryConfig    `yaml:"history"`
	Report         ReportConfig     `yaml:"report"`
	Log            LogConfig        `yaml:"log"`
}

// AWSConfig selects credentials and the log group used for attribution.
type AWSConfig struct {
	ProfileName          string `yaml:"profile_name"`
	SecondaryProfileName string `yaml:"secondary_profile_name"`
	RegionName           string `yaml:"region_name"`
	LogGroupName         string `yaml:"bedrock_log_group_name"`
}

// GatewayConfig locates the LiteLLM gateway.
type GatewayConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	APIKey           string `yaml:"api_key"`
	FallbackAlias    string `yaml:"fallback_alias"`
	LoadBalanceAlias string `yaml:"loadbalance_alias"`
}

// BaseURL returns the gateway's OpenAI-compatible base URL.
func (g GatewayConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", g.Host, g.Port)
}

// CRISConfig names the cross-region inference profile.
type CRISConfig struct {
	ModelID string `yaml:"model_id"`
}

// Deployment is one gateway model deployment.
type Deployment struct {
	ModelName string           `yaml:"model_name"`
	RPM       int              `yaml:"rpm"`
	Params    DeploymentParams `yaml:"litellm_params"`
}

// DeploymentParams holds the backend model of a deployment.
type DeploymentParams struct {
	Model string `yaml:"model"`
}

// BackendModel returns the deployment's model without the provider prefix.
func (d Deployment) BackendModel() string {
	m := d.Params.Model
	if i := strings.Index(m, "/"); i >= 0 && !strings.Contains(m[:i], ".") {
		m = m[i+1:]
	}
	return m
}

// RouterSettings mirrors the gateway's router settings.
type RouterSettings struct {
	RoutingStrategy string                `yaml:"routing_strategy"`
	Fallbacks       []map[string][]string `yaml:"fallbacks"`
}

// ConsumerConfig is one consumer identity for quota isolation.
type ConsumerConfig struct {
	ID       string `yaml:"id"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Requests int    `yaml:"requests"`
	Type     string `yaml:"type"`
}

// Noisy reports whether the consumer is expected to exceed its quota.
func (c ConsumerConfig) Noisy() bool { return c.Type == ConsumerNoisy }

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	LatencyPolicy LatencyPolicy `yaml:"latency_policy"`
	MaxRequests   int           `yaml:"max_requests"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// ShardingConfig selects the account sharding strategy.
type ShardingConfig struct {
	Strategy Strategy `yaml:"strategy"`
}

// HistoryConfig selects where run history is kept.
type HistoryConfig struct {
	Backend     string `yaml:"backend"`
	RedisAddr   string `yaml:"redis_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// ReportConfig configures the report HTTP server. Empty Addr disables it.
type ReportConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the logger flavour ("dev" or "prod").
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("llmresilience: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes, applies defaults and validates.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("llmresilience: parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	setDefault(&c.AWS.ProfileName, DefaultProfile)
	setDefault(&c.AWS.SecondaryProfileName, DefaultSecondaryProfile)
	setDefault(&c.AWS.RegionName, DefaultRegion)
	setDefault(&c.AWS.LogGroupName, DefaultLogGroup)

	setDefault(&c.Gateway.Host, DefaultGatewayHost)
	setDefault(&c.Gateway.APIKey, DefaultGatewayKey)
	setDefault(&c.Gateway.FallbackAlias, DefaultFallbackAlias)
	setDefault(&c.Gateway.LoadBalanceAlias, DefaultLoadBalanceAlias)
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}

	setDefault(&c.CRIS.ModelID, DefaultCRISModel)

	if len(c.Consumers) == 0 {
		c.Consumers = DefaultConsumers()
	}
	for i := range c.Consumers {
		setDefault(&c.Consumers[i].Type, ConsumerNormal)
	}

	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = DefaultCallTimeout
	}
	if c.Dispatch.LatencyPolicy == "" {
		c.Dispatch.LatencyPolicy = LatencySuccessOnly
	}
	if c.Dispatch.MaxRequests == 0 {
		c.Dispatch.MaxRequests = DefaultMaxRequests
	}
	if c.Dispatch.MaxTokens == 0 {
		c.Dispatch.MaxTokens = DefaultMaxTokens
	}

	if c.Sharding.Strategy == "" {
		c.Sharding.Strategy = StrategyRoundRobin
	}
	setDefault(&c.History.Backend, HistoryMemory)
	setDefault(&c.History.KeyPrefix, "llmr:")
	setDefault(&c.Log.Mode, "dev")
}

// DefaultConsumers returns the three consumers of the quota isolation demo:
// one noisy neighbour and two well-behaved ones.
func DefaultConsumers() []ConsumerConfig {
	return []ConsumerConfig{
		{ID: "A", APIKey: "consumer-a-key", Model: "consumer-a-model", Requests: 5, Type: ConsumerNoisy},
		{ID: "B", APIKey: "consumer-b-key", Model: "consumer-b-model", Requests: 5, Type: ConsumerNormal},
		{ID: "C", APIKey: "consumer-c-key", Model: "consumer-c-model", Requests: 5, Type: ConsumerNormal},
	}
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if !regionPattern.MatchString(c.AWS.RegionName) {
		return fmt.Errorf("llmresilience: config: invalid aws region %q", c.AWS.RegionName)
	}
	if !logGroupPattern.MatchString(c.AWS.LogGroupName) {
		return fmt.Errorf("llmresilience: config: invalid log group name %q", c.AWS.LogGroupName)
	}
	if strings.TrimSpace(c.AWS.ProfileName) == "" {
		return fmt.Errorf("llmresilience: config: aws profile_name is required")
	}
	if c.Gateway.Port < 1024 || c.Gateway.Port > 65535 {
		return fmt.Errorf("llmresilience: config: litellm port %d out of range 1024-65535", c.Gateway.Port)
	}

	names := make(map[string]bool, len(c.Deployments))
	for i, d := range c.Deployments {
		if d.ModelName == "" {
			return fmt.Errorf("llmresilience: config: model_list[%d]: model_name is required", i)
		}
		if d.RPM < 0 {
			return fmt.Errorf("llmresilience: config: model_list[%d] (%s): rpm must not be negative", i, d.ModelName)
		}
		names[d.ModelName] = true
	}
	for _, fb := range c.RouterSettings.Fallbacks {
		for primary, targets := range fb {
			if len(names) > 0 && !names[primary] {
				return fmt.Errorf("llmresilience: config: fallback source %q is not in model_list", primary)
			}
			for _, t := range targets {
				if len(names) > 0 && !names[t] {
					return fmt.Errorf("llmresilience: config: fallback target %q is not in model_list", t)
				}
			}
		}
	}

	ids := make(map[string]bool, len(c.Consumers))
	for i, cons := range c.Consumers {
		if cons.ID == "" {
			return fmt.Errorf("llmresilience: config: consumers[%d]: id is required", i)
		}
		if ids[cons.ID] {
			return fmt.Errorf("llmresilience: config: duplicate consumer id %q", cons.ID)
		}
		ids[cons.ID] = true
		if cons.Model == "" {
			return fmt.Errorf("llmresilience: config: consumers[%d] (%s): model is required", i, cons.ID)
		}
		if cons.Requests < 0 {
			return fmt.Errorf("llmresilience: config: consumers[%d] (%s): requests must not be negative", i, cons.ID)
		}
		if cons.Type != ConsumerNoisy && cons.Type != ConsumerNormal {
			return fmt.Errorf("llmresilience: config: consumers[%d] (%s): invalid type %q", i, cons.ID, cons.Type)
		}
	}

	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("llmresilience: config: dispatch timeout must not be negative")
	}
	if !c.Dispatch.LatencyPolicy.Valid() {
		return fmt.Errorf("llmresilience: config: invalid latency_policy %q", c.Dispatch.LatencyPolicy)
	}
	if c.Dispatch.MaxRequests < 1 {
		return fmt.Errorf("llmresilience: config: max_requests must be positive")
	}
	if !c.Sharding.Strategy.Valid() {
		return fmt.Errorf("llmresilience: config: invalid sharding strategy %q", c.Sharding.Strategy)
	}

	switch c.History.Backend {
	case HistoryMemory:
	case HistoryRedis:
		if c.History.RedisAddr == "" {
			return fmt.Errorf("llmresilience: config: history redis_addr is required")
		}
	case HistoryPostgres:
		if c.History.PostgresDSN == "" {
			return fmt.Errorf("llmresilience: config: history postgres_dsn is required")
		}
	default:
		return fmt.Errorf("llmresilience: config: invalid history backend %q", c.History.Backend)
	}

	if c.Log.Mode != "dev" && c.Log.Mode != "prod" {
		return fmt.Errorf("llmresilience: config: invalid log mode %q", c.Log.Mode)
	}
	return nil
}

// ValidateRequests checks a requested batch size against the configured cap.
func (c Config) ValidateRequests(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrNoRequests, n)
	}
	if n > c.Dispatch.MaxRequests {
		return fmt.Errorf("llmresilience: at most %d requests allowed, got %d", c.Dispatch.MaxRequests, n)
	}
	return nil
}

// Deployment returns the first deployment registered under name.
func (c Config) Deployment(name string) (Deployment, bool) {
	for _, d := range c.Deployments {
		if d.ModelName == name {
			return d, true
		}
	}
	return Deployment{}, false
}

// FallbacksFor returns the fallback model names configured for alias.
func (c Config) FallbacksFor(alias string) []string {
	var out []string
	for _, fb := range c.RouterSettings.Fallbacks {
		out = append(out, fb[alias]...)
	}
	return out
}

// Deployment roles.
const (
	RolePrimary  = "Primary"
	RoleFallback = "Fallback"
)

// DeploymentRow is one line of the gateway configuration table.
type DeploymentRow struct {
	Model string
	RPM   int
	Role  string
}

// GatewayTable lists the deployments serving alias followed by its fallbacks.
func (c Config) GatewayTable(alias string) []DeploymentRow {
	var rows []DeploymentRow
	for _, d := range c.Deployments {
		if d.ModelName == alias {
			rows = append(rows, DeploymentRow{Model: d.BackendModel(), RPM: d.RPM, Role: RolePrimary})
		}
	}
	fallbacks := make(map[string]bool)
	for _, f := range c.FallbacksFor(alias) {
		fallbacks[f] = true
	}
	for _, d := range c.Deployments {
		if fallbacks[d.ModelName] {
			rows = append(rows, DeploymentRow{Model: d.BackendModel(), RPM: d.RPM, Role: RoleFallback})
		}
	}
	return rows
}

// RoleOf reports whether a served model belongs to alias's primary
// deployments or to one of its fallbacks. It returns "" when unknown.
func (c Config) RoleOf(alias, served string) string {
	for _, row := range c.GatewayTable(alias) {
		if sameModel(row.Model, served) {
			return row.Role
		}
	}
	return ""
}

func sameModel(configured, served string) bool {
	if configured == "" || served == "" {
		return false
	}
	return configured == served ||
		strings.HasSuffix(served, configured) ||
		strings.HasSuffix(configured, served)
}

func setDefault(s *string, v string) {
	if strings.TrimSpace(*s) == "" {
		*s = v
	} else {
		*s = strings.TrimSpace(*s)
	}
}

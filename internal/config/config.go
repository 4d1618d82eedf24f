package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Rules    []RuleConfig `yaml:"rules"`
	Settings Settings     `yaml:"settings"`
}

// Settings holds daemon-wide tunables.
type Settings struct {
	// RuleTimeout bounds how long a parent match stays pending.
	RuleTimeout time.Duration
	// RelationshipRetention bounds how long resolved parent/child
	// relationships are kept; zero keeps them for the process lifetime.
	RelationshipRetention time.Duration
	Debug                 bool
}

// UnmarshalYAML decodes settings, converting second-valued numbers into
// durations.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	type rawSettings struct {
		RuleTimeout           *float64 `yaml:"rule_timeout"`
		RelationshipRetention *float64 `yaml:"relationship_retention"`
		Debug                 bool     `yaml:"debug"`
	}
	var raw rawSettings
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Debug = raw.Debug
	if raw.RuleTimeout != nil {
		s.RuleTimeout = secondsToDuration(*raw.RuleTimeout)
	}
	if raw.RelationshipRetention != nil {
		s.RelationshipRetention = secondsToDuration(*raw.RelationshipRetention)
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// RuleConfig is the raw shape of a single rule. Semantic validation happens
// when rules are compiled, one rule at a time.
type RuleConfig struct {
	Name    string         `yaml:"name"`
	Parent  MatcherConfig  `yaml:"parent"`
	Child   MatcherConfig  `yaml:"child"`
	Actions []ActionConfig `yaml:"actions"`
}

// MatcherConfig lists the alternative matcher criteria for one side of a
// rule. Every field accepts either a scalar or a list in YAML.
type MatcherConfig struct {
	AppID        StringList `yaml:"app_id"`
	Class        StringList `yaml:"class"`
	TitlePattern StringList `yaml:"title_pattern"`
}

// StringList decodes a YAML scalar or sequence into a string slice.
type StringList []string

// UnmarshalYAML accepts both `app_id: kitty` and `app_id: [kitty, foot]`.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	default:
		return fmt.Errorf("expected string or list, got %s", kindName(value.Kind))
	}
}

// ActionConfig is the canonical key/value form of one action. Configuration
// accepts two spellings per entry, normalized here so the rest of the system
// only ever sees this shape:
//
//	- place: below            # single-key mapping
//	- "set_mode: v after"     # string shorthand
type ActionConfig struct {
	Key   string
	Value interface{}
}

// UnmarshalYAML normalizes both action spellings.
func (a *ActionConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		key, val, ok := strings.Cut(s, ":")
		if !ok {
			return fmt.Errorf("string action %q must be of form \"key: value\"", s)
		}
		a.Key = strings.TrimSpace(key)
		a.Value = strings.TrimSpace(val)
		if a.Key == "" {
			return fmt.Errorf("string action %q has an empty key", s)
		}
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("action mapping must contain exactly one key-value pair")
		}
		keyNode := value.Content[0]
		valNode := value.Content[1]
		if keyNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("action key must be a string")
		}
		a.Key = keyNode.Value
		var val interface{}
		if err := valNode.Decode(&val); err != nil {
			return fmt.Errorf("action %q: %w", a.Key, err)
		}
		a.Value = val
		return nil
	default:
		return fmt.Errorf("action must be a string or a single-key mapping, got %s", kindName(value.Kind))
	}
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

// DefaultRuleTimeout applies when settings omit rule_timeout.
const DefaultRuleTimeout = 10 * time.Second

// Load reads and decodes a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes, applies defaults, and validates the
// settings block. Rule bodies are deliberately not validated here; the rule
// compiler checks them one at a time so a single bad rule cannot reject the
// whole file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.RuleTimeout == 0 {
		c.Settings.RuleTimeout = DefaultRuleTimeout
	}
}

// Validate checks the settings block.
func (c *Config) Validate() error {
	if c.Settings.RuleTimeout <= 0 {
		return fmt.Errorf("settings.rule_timeout must be greater than 0")
	}
	if c.Settings.RelationshipRetention < 0 {
		return fmt.Errorf("settings.relationship_retention cannot be negative")
	}
	return nil
}

// DefaultPath returns the first existing config file among the conventional
// locations, or the preferred location when none exist yet.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/smart-tiling/config.yaml"
	}
	candidates := []string{
		home + "/.config/smart-tiling/rules.yaml",
		home + "/.config/smart-tiling/config.yaml",
		"/etc/smart-tiling/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return candidates[0]
}

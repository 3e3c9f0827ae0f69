package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models vowline.yml: zone concurrency rules, conflict severity
// weights, optimizer budget defaults and vendor profile tuning. The exact
// weights and budgets are deliberately configuration, not code.
type Config struct {
	Event struct {
		ID string `yaml:"id"`
	} `yaml:"event"`
	Zones struct {
		Catalog map[string]ZoneRule `yaml:"catalog"`
	} `yaml:"zones"`
	Conflicts struct {
		Weights WeightSet `yaml:"weights"`
	} `yaml:"conflicts"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Profiles  ProfileConfig   `yaml:"profiles"`
	Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one notification sink subscribed to the audit
// log: the planner-facing notifier consumes new optimization results here.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

type ZoneRule struct {
	Description     string `yaml:"description"`
	AllowConcurrent bool   `yaml:"allow_concurrent"`
}

// WeightSet holds per conflict kind severity multipliers.
type WeightSet struct {
	ZoneOverlap         float64 `yaml:"zone_overlap"`
	VendorDoubleBooking float64 `yaml:"vendor_double_booking"`
	DependencyViolation float64 `yaml:"dependency_violation"`
	VenueWindow         float64 `yaml:"venue_window_violation"`
}

type OptimizerConfig struct {
	MaxIterations      int `yaml:"max_iterations"`
	MoveTimeoutMillis  int `yaml:"move_timeout_ms"`
	SmallOverlapMins   int `yaml:"small_overlap_minutes"`
	BufferStepMinutes  int `yaml:"buffer_step_minutes"`
	SlackRiskHorizonMn int `yaml:"slack_risk_horizon_minutes"`
}

type ProfileConfig struct {
	EWMAAlpha           float64                    `yaml:"ewma_alpha"`
	MinSamples          int                        `yaml:"min_samples"`
	ConfidenceThreshold float64                    `yaml:"confidence_threshold"`
	CategoryDefaults    map[string]CategoryDefault `yaml:"category_defaults"`
}

type CategoryDefault struct {
	ExpectedDelayMinutes float64 `yaml:"expected_delay_minutes"`
	DelayVariance        float64 `yaml:"delay_variance"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with vl event config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	w := c.Conflicts.Weights
	for name, v := range map[string]float64{
		"zone_overlap":           w.ZoneOverlap,
		"vendor_double_booking":  w.VendorDoubleBooking,
		"dependency_violation":   w.DependencyViolation,
		"venue_window_violation": w.VenueWindow,
	} {
		if v <= 0 {
			return fmt.Errorf("config.conflicts.weights.%s must be positive", name)
		}
	}
	if c.Optimizer.MaxIterations <= 0 {
		return fmt.Errorf("config.optimizer.max_iterations must be positive")
	}
	if c.Optimizer.MoveTimeoutMillis <= 0 {
		return fmt.Errorf("config.optimizer.move_timeout_ms must be positive")
	}
	if c.Optimizer.SmallOverlapMins < 0 {
		return fmt.Errorf("config.optimizer.small_overlap_minutes must not be negative")
	}
	if c.Profiles.EWMAAlpha <= 0 || c.Profiles.EWMAAlpha > 1 {
		return fmt.Errorf("config.profiles.ewma_alpha must be in (0,1]")
	}
	if c.Profiles.MinSamples <= 0 {
		return fmt.Errorf("config.profiles.min_samples must be positive")
	}
	if c.Profiles.ConfidenceThreshold < 0 || c.Profiles.ConfidenceThreshold > 1 {
		return fmt.Errorf("config.profiles.confidence_threshold must be in [0,1]")
	}
	for zone := range c.Zones.Catalog {
		if zone == "" {
			return fmt.Errorf("config.zones.catalog contains empty zone name")
		}
	}
	for cat, d := range c.Profiles.CategoryDefaults {
		if cat == "" {
			return fmt.Errorf("config.profiles.category_defaults contains empty category")
		}
		if d.DelayVariance < 0 {
			return fmt.Errorf("category %s has negative delay variance", cat)
		}
	}
	return nil
}

// ZoneAllowsConcurrent reports whether a zone tolerates concurrent vendors.
// Unknown zones default to exclusive occupancy.
func (c *Config) ZoneAllowsConcurrent(zone string) bool {
	if c == nil {
		return false
	}
	rule, ok := c.Zones.Catalog[zone]
	if !ok {
		return false
	}
	return rule.AllowConcurrent
}

// Weight returns the severity multiplier for a conflict kind string.
func (c *Config) Weight(kind string) float64 {
	if c == nil {
		return 1
	}
	switch kind {
	case "zone-overlap":
		return c.Conflicts.Weights.ZoneOverlap
	case "vendor-double-booking":
		return c.Conflicts.Weights.VendorDoubleBooking
	case "dependency-violation":
		return c.Conflicts.Weights.DependencyViolation
	case "venue-window-violation":
		return c.Conflicts.Weights.VenueWindow
	}
	return 1
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "vowline.yml")
}

// GenerateDefault returns default config YAML for an event.
func GenerateDefault(eventID string) string {
	return fmt.Sprintf(defaultTemplate, eventID)
}

// Default returns the default Config struct for an event.
func Default(eventID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, eventID))).Decode(&cfg)
	cfg.Event.ID = eventID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `event:
  id: %s

zones:
  catalog:
    ceremony:
      description: "Ceremony site"
      allow_concurrent: false
    reception:
      description: "Reception hall"
      allow_concurrent: false
    kitchen:
      description: "Catering prep kitchen"
      allow_concurrent: true
    garden:
      description: "Outdoor space shared by photo and florals"
      allow_concurrent: true
    parking:
      description: "Vendor load-in area"
      allow_concurrent: true

conflicts:
  weights:
    zone_overlap: 1.0
    vendor_double_booking: 2.0
    dependency_violation: 3.0
    venue_window_violation: 2.5

optimizer:
  max_iterations: 200
  move_timeout_ms: 250
  small_overlap_minutes: 15
  buffer_step_minutes: 10
  slack_risk_horizon_minutes: 60

profiles:
  ewma_alpha: 0.3
  min_samples: 5
  confidence_threshold: 0.6
  category_defaults:
    catering:
      expected_delay_minutes: 12
      delay_variance: 36
    photography:
      expected_delay_minutes: 5
      delay_variance: 16
    florals:
      expected_delay_minutes: 8
      delay_variance: 25
    music:
      expected_delay_minutes: 6
      delay_variance: 20
    venue:
      expected_delay_minutes: 3
      delay_variance: 9
`

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	PolicyModeFixed    = "fixed"
	PolicyModeAdaptive = "adaptive"

	DefaultFixtureImage = "registry.k8s.io/e2e-test-images/agnhost:2.43"
)

// Config holds everything a harness run needs.  Keys are snake_case so that
// NETPOL_HARNESS__PROBE__ATTEMPTS style environment variables map onto them.
type Config struct {
	LogLevel        string          `koanf:"log_level"`
	LogJSON         bool            `koanf:"log_json"`
	KubeContext     string          `koanf:"kube_context"`
	NamespacePrefix string          `koanf:"namespace_prefix"`
	Workers         int             `koanf:"workers"`
	CaseTimeout     time.Duration   `koanf:"case_timeout"`
	FailFast        bool            `koanf:"fail_fast"`
	CNI             string          `koanf:"cni"`
	Capabilities    map[string]bool `koanf:"capabilities"`

	Namespace  NamespaceConfig  `koanf:"namespace"`
	Fixture    FixtureConfig    `koanf:"fixture"`
	Policy     PolicyConfig     `koanf:"policy"`
	Probe      ProbeConfig      `koanf:"probe"`
	API        APIConfig        `koanf:"api"`
	Thresholds ThresholdsConfig `koanf:"thresholds"`
	Regression RegressionConfig `koanf:"regression"`
	Output     OutputConfig     `koanf:"output"`
}

type NamespaceConfig struct {
	CreateAttempts int           `koanf:"create_attempts"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	DeleteTimeout  time.Duration `koanf:"delete_timeout"`
}

type FixtureConfig struct {
	Image         string        `koanf:"image"`
	Port          int           `koanf:"port"`
	ReadyInterval time.Duration `koanf:"ready_interval"`
	ReadyTimeout  time.Duration `koanf:"ready_timeout"`
}

type PolicyConfig struct {
	Mode             string        `koanf:"mode"`
	PropagationDelay time.Duration `koanf:"propagation_delay"`
	AdaptiveInterval time.Duration `koanf:"adaptive_interval"`
	AdaptiveCeiling  time.Duration `koanf:"adaptive_ceiling"`
}

type ProbeConfig struct {
	Attempts int           `koanf:"attempts"`
	Backoff  time.Duration `koanf:"backoff"`
	Timeout  time.Duration `koanf:"timeout"`
	Command  string        `koanf:"command"`
}

type APIConfig struct {
	QPS   float64 `koanf:"qps"`
	Burst int     `koanf:"burst"`
}

// ThresholdsConfig: Categories overrides Minimum for individual categories.
type ThresholdsConfig struct {
	Minimum    float64            `koanf:"minimum"`
	Target     float64            `koanf:"target"`
	Categories map[string]float64 `koanf:"categories"`
}

type RegressionConfig struct {
	BaselinePath   string  `koanf:"baseline_path"`
	MaxDrop        float64 `koanf:"max_drop"`
	UpdateBaseline bool    `koanf:"update_baseline"`
}

type OutputConfig struct {
	ReportPath     string `koanf:"report_path"`
	BadgeDir       string `koanf:"badge_dir"`
	JUnitPath      string `koanf:"junit_path"`
	MetricsPath    string `koanf:"metrics_path"`
	PushgatewayURL string `koanf:"pushgateway_url"`
}

func Default() Config {
	return Config{
		LogLevel:        "info",
		NamespacePrefix: "nph",
		Workers:         4,
		CaseTimeout:     5 * time.Minute,
		Namespace: NamespaceConfig{
			CreateAttempts: 3,
			RetryInterval:  2 * time.Second,
			DeleteTimeout:  30 * time.Second,
		},
		Fixture: FixtureConfig{
			Image:         DefaultFixtureImage,
			Port:          80,
			ReadyInterval: time.Second,
			ReadyTimeout:  60 * time.Second,
		},
		Policy: PolicyConfig{
			Mode:             PolicyModeFixed,
			PropagationDelay: 4 * time.Second,
			AdaptiveInterval: time.Second,
			AdaptiveCeiling:  20 * time.Second,
		},
		Probe: ProbeConfig{
			Attempts: 2,
			Backoff:  2 * time.Second,
			Timeout:  3 * time.Second,
			Command:  "curl",
		},
		API: APIConfig{
			QPS:   20,
			Burst: 40,
		},
		Thresholds: ThresholdsConfig{
			Minimum: 80,
			Target:  95,
		},
		Regression: RegressionConfig{
			MaxDrop: 5,
		},
		Output: OutputConfig{
			ReportPath: "coverage-report.json",
		},
	}
}

// MinimumFor is the floor a category's percentage must reach.
func (t ThresholdsConfig) MinimumFor(category string) float64 {
	if floor, ok := t.Categories[category]; ok {
		return floor
	}
	return t.Minimum
}

// Validate collects every problem rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Workers < 1 {
		addf("workers: must be at least 1, got %d", c.Workers)
	}
	if c.CaseTimeout <= 0 {
		addf("case_timeout: must be positive, got %s", c.CaseTimeout)
	}
	// the prefix is joined with a category and an 8 character suffix
	for _, msg := range validation.IsDNS1123Label(c.NamespacePrefix) {
		addf("namespace_prefix: %s", msg)
	}
	if len(c.NamespacePrefix) > 20 {
		addf("namespace_prefix: must be at most 20 characters, got %d", len(c.NamespacePrefix))
	}
	if c.Namespace.CreateAttempts < 1 {
		addf("namespace.create_attempts: must be at least 1, got %d", c.Namespace.CreateAttempts)
	}
	if c.Fixture.Image == "" {
		addf("fixture.image: must not be empty")
	}
	for _, msg := range validation.IsValidPortNum(c.Fixture.Port) {
		addf("fixture.port: %s", msg)
	}
	if c.Fixture.ReadyTimeout <= 0 {
		addf("fixture.ready_timeout: must be positive, got %s", c.Fixture.ReadyTimeout)
	}
	switch c.Policy.Mode {
	case PolicyModeFixed, PolicyModeAdaptive:
	default:
		addf("policy.mode: must be one of [%s %s], got '%s'", PolicyModeFixed, PolicyModeAdaptive, c.Policy.Mode)
	}
	if c.Policy.PropagationDelay < 0 {
		addf("policy.propagation_delay: must not be negative, got %s", c.Policy.PropagationDelay)
	}
	if c.Policy.Mode == PolicyModeAdaptive && c.Policy.AdaptiveCeiling <= 0 {
		addf("policy.adaptive_ceiling: must be positive in adaptive mode, got %s", c.Policy.AdaptiveCeiling)
	}
	if c.Probe.Attempts < 1 {
		addf("probe.attempts: must be at least 1, got %d", c.Probe.Attempts)
	}
	if c.Probe.Timeout < time.Second {
		addf("probe.timeout: must be at least 1s, got %s", c.Probe.Timeout)
	}
	switch c.Probe.Command {
	case "curl", "wget":
	default:
		addf("probe.command: must be one of [curl wget], got '%s'", c.Probe.Command)
	}
	if c.API.Burst < 0 {
		addf("api.burst: must not be negative, got %d", c.API.Burst)
	}
	checkPercentage := func(name string, value float64) {
		if value < 0 || value > 100 {
			addf("%s: must be within [0, 100], got %f", name, value)
		}
	}
	checkPercentage("thresholds.minimum", c.Thresholds.Minimum)
	checkPercentage("thresholds.target", c.Thresholds.Target)
	for category, floor := range c.Thresholds.Categories {
		checkPercentage("thresholds.categories."+category, floor)
	}
	if c.Regression.MaxDrop < 0 {
		addf("regression.max_drop: must not be negative, got %f", c.Regression.MaxDrop)
	}
	if c.Regression.UpdateBaseline && c.Regression.BaselinePath == "" {
		addf("regression.update_baseline: requires regression.baseline_path")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

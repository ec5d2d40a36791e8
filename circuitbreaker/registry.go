package circuitbreaker

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bulwark-go/bulwark/core"
)

// DefaultConfigName is the registry key of the fallback configuration
const DefaultConfigName = "default"

// Registry manages named circuit breaker instances and the named base
// configurations they are created from. Breakers are created lazily
// and shared by name.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]*Config
	breakers map[string]*CircuitBreaker
	logger   core.Logger
}

// NewRegistry creates a registry seeded with the given default config.
// A nil config uses DefaultConfig.
func NewRegistry(defaultConfig *Config, logger core.Logger) *Registry {
	if defaultConfig == nil {
		defaultConfig = DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		configs:  map[string]*Config{DefaultConfigName: defaultConfig},
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// AddConfiguration registers a named base configuration
func (r *Registry) AddConfiguration(name string, config *Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration %q: %w", name, err)
	}
	r.mu.Lock()
	r.configs[name] = config
	r.mu.Unlock()
	return nil
}

// Configuration returns a registered base configuration
func (r *Registry) Configuration(name string) (*Config, error) {
	r.mu.RLock()
	config, ok := r.configs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no configuration named %q: %w", name, core.ErrConfigurationNotFound)
	}
	return config, nil
}

// Breaker returns the breaker with the given name, creating it from
// the default configuration on first use.
func (r *Registry) Breaker(name string) (*CircuitBreaker, error) {
	return r.BreakerWithConfigName(name, DefaultConfigName)
}

// BreakerWithConfigName returns the breaker with the given name,
// creating it from the named base configuration on first use. A
// missing base configuration is core.ErrConfigurationNotFound.
func (r *Registry) BreakerWithConfigName(name, configName string) (*CircuitBreaker, error) {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb, nil
	}

	base, ok := r.configs[configName]
	if !ok {
		return nil, fmt.Errorf("no configuration named %q: %w", configName, core.ErrConfigurationNotFound)
	}

	config := *base
	config.Name = name
	if config.Logger == nil || isNoOp(config.Logger) {
		config.Logger = r.logger
	}

	cb, err := New(&config)
	if err != nil {
		return nil, err
	}
	r.breakers[name] = cb

	r.logger.Info("Circuit breaker registered", map[string]interface{}{
		"operation":   "registry_breaker_created",
		"name":        name,
		"config_name": configName,
	})
	return cb, nil
}

// All returns every breaker created so far
func (r *Registry) All() []*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb)
	}
	return out
}

func isNoOp(l core.Logger) bool {
	_, ok := l.(*core.NoOpLogger)
	return ok
}

// fileDoc is the YAML shape accepted by LoadConfig. Only the current
// parameter names are bound; the deprecated ring-buffer aliases are
// not recognized here.
type fileDoc struct {
	Configs   map[string]fileConfig `yaml:"configs"`
	Instances map[string]string     `yaml:"instances"` // instance name -> config name
}

type fileConfig struct {
	BaseConfig string `yaml:"base_config"`

	FailureRateThreshold             *float64 `yaml:"failure_rate_threshold"`
	SlowCallRateThreshold            *float64 `yaml:"slow_call_rate_threshold"`
	SlowCallDurationThreshold        *string  `yaml:"slow_call_duration_threshold"`
	WaitDurationInOpenState          *string  `yaml:"wait_duration_in_open_state"`
	SlidingWindowSize                *int     `yaml:"sliding_window_size"`
	SlidingWindowType                *string  `yaml:"sliding_window_type"`
	MinimumNumberOfCalls             *int     `yaml:"minimum_number_of_calls"`
	PermittedNumberOfCallsInHalfOpen *int     `yaml:"permitted_number_of_calls_in_half_open"`
	AutomaticTransition              *bool    `yaml:"automatic_transition_from_open_to_half_open_enabled"`
	WritableStackTraceEnabled        *bool    `yaml:"writable_stack_trace_enabled"`
}

// LoadConfigFile reads a YAML document of named configurations and
// instances and registers them.
func (r *Registry) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return r.LoadConfig(data)
}

// LoadConfig registers the configurations and instances of a YAML
// document. A config may name another config in the same document (or
// an already registered one) as base_config; referencing an absent
// base is core.ErrConfigurationNotFound.
func (r *Registry) LoadConfig(data []byte) error {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	// Resolve configs iteratively so in-document base references work
	// regardless of declaration order.
	remaining := make(map[string]fileConfig, len(doc.Configs))
	for name, fc := range doc.Configs {
		remaining[name] = fc
	}

	for len(remaining) > 0 {
		progressed := false
		for name, fc := range remaining {
			baseName := fc.BaseConfig
			if baseName == "" {
				baseName = DefaultConfigName
			}
			if _, stillPending := remaining[baseName]; stillPending && baseName != name {
				continue
			}

			base, err := r.Configuration(baseName)
			if err != nil {
				return fmt.Errorf("config %q: %w", name, err)
			}

			config, err := fc.apply(base)
			if err != nil {
				return fmt.Errorf("config %q: %w", name, err)
			}
			if err := r.AddConfiguration(name, config); err != nil {
				return err
			}
			delete(remaining, name)
			progressed = true
		}
		if !progressed {
			for name := range remaining {
				return fmt.Errorf("config %q: base configuration cycle or missing base: %w",
					name, core.ErrConfigurationNotFound)
			}
		}
	}

	for instance, configName := range doc.Instances {
		if _, err := r.BreakerWithConfigName(instance, configName); err != nil {
			return fmt.Errorf("instance %q: %w", instance, err)
		}
	}
	return nil
}

// apply overlays the file values onto a copy of the base config
func (fc fileConfig) apply(base *Config) (*Config, error) {
	config := *base

	if fc.FailureRateThreshold != nil {
		config.FailureRateThreshold = *fc.FailureRateThreshold
	}
	if fc.SlowCallRateThreshold != nil {
		config.SlowCallRateThreshold = *fc.SlowCallRateThreshold
	}
	if fc.SlowCallDurationThreshold != nil {
		d, err := time.ParseDuration(*fc.SlowCallDurationThreshold)
		if err != nil {
			return nil, fmt.Errorf("slow_call_duration_threshold: %v: %w", err, core.ErrInvalidArgument)
		}
		config.SlowCallDurationThreshold = d
	}
	if fc.WaitDurationInOpenState != nil {
		d, err := time.ParseDuration(*fc.WaitDurationInOpenState)
		if err != nil {
			return nil, fmt.Errorf("wait_duration_in_open_state: %v: %w", err, core.ErrInvalidArgument)
		}
		config.WaitDurationInOpenState = d
	}
	if fc.SlidingWindowSize != nil {
		config.SlidingWindowSize = *fc.SlidingWindowSize
	}
	if fc.SlidingWindowType != nil {
		switch *fc.SlidingWindowType {
		case "count":
			config.SlidingWindowType = WindowTypeCount
		case "time":
			config.SlidingWindowType = WindowTypeTime
		default:
			return nil, fmt.Errorf("sliding_window_type must be count or time, got %q: %w",
				*fc.SlidingWindowType, core.ErrInvalidArgument)
		}
	}
	if fc.MinimumNumberOfCalls != nil {
		config.MinimumNumberOfCalls = *fc.MinimumNumberOfCalls
	}
	if fc.PermittedNumberOfCallsInHalfOpen != nil {
		config.PermittedNumberOfCallsInHalfOpen = *fc.PermittedNumberOfCallsInHalfOpen
	}
	if fc.AutomaticTransition != nil {
		config.AutomaticTransitionFromOpenToHalfOpenEnabled = *fc.AutomaticTransition
	}
	if fc.WritableStackTraceEnabled != nil {
		config.WritableStackTraceEnabled = *fc.WritableStackTraceEnabled
	}

	return &config, nil
}

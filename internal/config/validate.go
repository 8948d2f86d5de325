package config

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalid marks a configuration value that cannot be clamped into shape.
var ErrInvalid = errors.New("invalid configuration")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateCompose(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEngine() error {
	switch c.Engine.Mode {
	case "auto", "1", "2":
		return nil
	default:
		return fmt.Errorf("%w: engine.mode must be auto, 1 or 2 (got %q)", ErrInvalid, c.Engine.Mode)
	}
}

func (c *Config) validateCompose() error {
	switch c.Compose.Fallback {
	case "pad", "zoom", "blur":
	default:
		return fmt.Errorf("%w: compose.fallback must be pad, zoom or blur (got %q)", ErrInvalid, c.Compose.Fallback)
	}
	return nil
}

var knownStrategies = []string{"socket", "worker", "pigo"}

func (c *Config) validateDetector() error {
	if len(c.Detector.Order) == 0 {
		return fmt.Errorf("%w: detector.order must name at least one strategy", ErrInvalid)
	}
	seen := map[string]bool{}
	for _, name := range c.Detector.Order {
		if !slices.Contains(knownStrategies, name) {
			return fmt.Errorf("%w: detector.order: unknown strategy %q", ErrInvalid, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: detector.order: %q listed twice", ErrInvalid, name)
		}
		seen[name] = true
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be auto, json or console (got %q)", ErrInvalid, c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: logging.level %q is not a level", ErrInvalid, c.Logging.Level)
	}
	return nil
}

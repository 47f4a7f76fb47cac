// Package config loads the server configuration from yaml and env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/billing-engine/billing"
)

// Config defines the billing server configuration.
type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// Timezone is the operating timezone; charge timestamps reduce to
	// dates in it.
	Timezone string `yaml:"timezone"`

	// WeeklyBase is the global recurring fee per week, decimal string.
	WeeklyBase string `yaml:"weekly_base"`

	// WorkingDays lists the billable weekdays ("mon".."sun").
	WorkingDays []string `yaml:"working_days"`

	// GlobalFloor is the optional YYYY-MM-DD date before which nothing
	// is ever counted.
	GlobalFloor string `yaml:"global_floor"`

	NotifyOffsetDays int `yaml:"notify_offset_days"`
}

// LoadConfig loads config from yaml or env. Env values are defaults;
// a yaml file named by BILLING_CONFIG overrides them.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:             getenvIntDefault("BILLING_PORT", 8080),
		DBPath:           getenvDefault("BILLING_DB_PATH", "./data/billing.db"),
		Timezone:         getenvDefault("BILLING_TIMEZONE", "Asia/Dubai"),
		WeeklyBase:       getenvDefault("BILLING_WEEKLY_BASE", "725"),
		WorkingDays:      splitCSV(getenvDefault("BILLING_WORKING_DAYS", "")),
		GlobalFloor:      os.Getenv("BILLING_GLOBAL_FLOOR"),
		NotifyOffsetDays: getenvIntDefault("BILLING_NOTIFY_OFFSET_DAYS", 2),
	}

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.WorkingDays) == 0 {
		cfg.WorkingDays = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	return cfg, nil
}

// Location resolves the operating timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Weekdays parses WorkingDays into time.Weekday values.
func (c Config) Weekdays() ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
		"sun": time.Sunday,
	}
	var out []time.Weekday
	for _, raw := range c.WorkingDays {
		name := strings.ToLower(strings.TrimSpace(raw))
		if len(name) > 3 {
			name = name[:3]
		}
		wd, ok := names[name]
		if !ok {
			return nil, fmt.Errorf("invalid working day %q", raw)
		}
		out = append(out, wd)
	}
	return out, nil
}

// FloorDay parses GlobalFloor, nil when unset.
func (c Config) FloorDay() (*billing.Day, error) {
	if c.GlobalFloor == "" {
		return nil, nil
	}
	d, err := billing.ParseDay(c.GlobalFloor)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// EngineConfig converts the loaded configuration into engine wiring.
func (c Config) EngineConfig() (billing.Config, error) {
	base, err := decimal.NewFromString(c.WeeklyBase)
	if err != nil {
		return billing.Config{}, fmt.Errorf("invalid weekly base %q: %w", c.WeeklyBase, err)
	}
	loc, err := c.Location()
	if err != nil {
		return billing.Config{}, err
	}
	weekdays, err := c.Weekdays()
	if err != nil {
		return billing.Config{}, err
	}

	return billing.Config{
		WeeklyBase:       base,
		WorkingWeekdays:  weekdays,
		Location:         loc,
		NotifyOffsetDays: c.NotifyOffsetDays,
	}, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

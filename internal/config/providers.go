package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the adapter registry.
const (
	KindLTA    = "lta"
	KindNUS    = "nus"
	KindGTFSRT = "gtfsrt"
)

// Provider describes one transit data source.
type Provider struct {
	ID      string `yaml:"id" validate:"required,alphanum"`
	Kind    string `yaml:"kind" validate:"required,oneof=lta nus gtfsrt"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Enabled bool   `yaml:"enabled"`

	// LTA DataMall
	AccountKey string `yaml:"account_key" validate:"required_if=Kind lta"`

	// NUS NextBus (basic auth)
	Username string `yaml:"username" validate:"required_if=Kind nus"`
	Password string `yaml:"password"`

	// GTFS static stops + GTFS-RT trip updates
	StopsURL       string `yaml:"stops_url" validate:"omitempty,url"`
	TripUpdatesURL string `yaml:"trip_updates_url" validate:"omitempty,url"`
}

type providersFile struct {
	Providers []Provider `yaml:"providers"`
}

// LoadProvidersFile reads a YAML provider registry and validates every
// entry. Disabled entries are dropped.
func LoadProvidersFile(path string) ([]Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if err := validateProviders(f.Providers); err != nil {
		return nil, err
	}

	var enabled []Provider
	for _, p := range f.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

func validateProviders(providers []Provider) error {
	v := validator.New()
	seen := make(map[string]bool)
	for _, p := range providers {
		if err := v.Struct(p); err != nil {
			return fmt.Errorf("provider %q: %w", p.ID, err)
		}
		switch {
		case p.Kind == KindGTFSRT && (p.StopsURL == "" || p.TripUpdatesURL == ""):
			return fmt.Errorf("provider %q: gtfsrt needs stops_url and trip_updates_url", p.ID)
		case p.Kind != KindGTFSRT && p.BaseURL == "":
			return fmt.Errorf("provider %q: base_url is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %q: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// Seed is the ownership data requests resolve against: teams, their services and the modules
// of each service.
//
//	teams:
//	  - {id: team-1, name: Payments}
//	services:
//	  - {id: svc-1, team_id: team-1, name: checkout, abbr: chk}
//	modules:
//	  - {id: mod-1, service_id: svc-1, name: web, host_abbr: web, template: tomcat}
type Seed struct {
	Teams    []engine.Team    `yaml:"teams" validate:"dive"`
	Services []engine.Service `yaml:"services" validate:"dive"`
	Modules  []engine.Module  `yaml:"modules" validate:"dive"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates seed YAML. Services must name a team of the seed and
// modules a service of the seed.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed YAML: %w", err)
	}

	if err := validator.New().Struct(&seed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid seed: %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	teams := make(map[string]bool, len(seed.Teams))
	for _, team := range seed.Teams {
		teams[team.ID] = true
	}
	services := make(map[string]bool, len(seed.Services))
	for _, service := range seed.Services {
		if !teams[service.TeamID] {
			return nil, fmt.Errorf("invalid seed: service %s references unknown team %s", service.ID, service.TeamID)
		}
		services[service.ID] = true
	}
	for _, module := range seed.Modules {
		if !services[module.ServiceID] {
			return nil, fmt.Errorf("invalid seed: module %s references unknown service %s", module.ID, module.ServiceID)
		}
	}

	return &seed, nil
}

// Import writes the seed into the store, replacing records with the same ids.
func (s *Seed) Import(ctx context.Context, store engine.CatalogStore) error {
	for i := range s.Teams {
		if err := store.SaveTeam(ctx, &s.Teams[i]); err != nil {
			return fmt.Errorf("failed to save team %s: %w", s.Teams[i].ID, err)
		}
	}
	for i := range s.Services {
		if err := store.SaveService(ctx, &s.Services[i]); err != nil {
			return fmt.Errorf("failed to save service %s: %w", s.Services[i].ID, err)
		}
	}
	for i := range s.Modules {
		if err := store.SaveModule(ctx, &s.Modules[i]); err != nil {
			return fmt.Errorf("failed to save module %s: %w", s.Modules[i].ID, err)
		}
	}
	return nil
}

package memory

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

//go:embed fixture.yaml
var defaultFixture []byte

// Fixture is a complete fleet dataset used to seed a memory store.
type Fixture struct {
	Vehicles       []fleet.Vehicle            `yaml:"vehicles"`
	Telematics     []fleet.TelematicsSnapshot `yaml:"telematics"`
	Predictions    []fleet.PredictedFailure   `yaml:"predictions"`
	ServiceCenters []fleet.ServiceCenter      `yaml:"service_centers"`
	Appointments   []fleet.Appointment        `yaml:"appointments"`
	RcaCapa        []fleet.RcaCapaRecord      `yaml:"rca_capa"`
}

// DefaultFixture returns the built-in demo fleet.
func DefaultFixture() (Fixture, error) {
	return ParseFixture(defaultFixture)
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes YAML fixture data.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// NewSeededStore builds a store preloaded with f.
func NewSeededStore(f Fixture) (*Store, error) {
	store := NewStore()
	if err := store.Seed(f); err != nil {
		return nil, err
	}
	return store, nil
}

// Seed loads every entity of f. Entities are validated and references checked.
func (s *Store) Seed(f Fixture) error {
	ctx := context.Background()
	for _, v := range f.Vehicles {
		if err := s.PutVehicle(v); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
		}
	}
	for _, c := range f.ServiceCenters {
		if err := s.PutServiceCenter(c); err != nil {
			return fmt.Errorf("seed center %s: %w", c.ID, err)
		}
	}
	for _, t := range f.Telematics {
		if err := s.AppendTelematics(ctx, t); err != nil {
			return fmt.Errorf("seed telematics %s: %w", t.ID, err)
		}
	}
	for _, p := range f.Predictions {
		if err := s.PutPrediction(p); err != nil {
			return fmt.Errorf("seed prediction %s: %w", p.ID, err)
		}
	}
	for _, a := range f.Appointments {
		if _, err := s.CreateAppointment(ctx, a); err != nil {
			return fmt.Errorf("seed appointment %s: %w", a.ID, err)
		}
	}
	for _, r := range f.RcaCapa {
		if err := s.PutRcaCapaRecord(r); err != nil {
			return fmt.Errorf("seed rca/capa %s: %w", r.ID, err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	fleet "fleet-risk-engine/internal/fleet/domain"
	"fleet-risk-engine/internal/fleet/infrastructure/memory"
)

// Seed upserts every entity of f. Existing appointments are left untouched.
func (s *Store) Seed(ctx context.Context, f memory.Fixture) error {
	for _, v := range f.Vehicles {
		if err := s.UpsertVehicle(ctx, v); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
		}
	}
	for _, c := range f.ServiceCenters {
		if err := s.UpsertServiceCenter(ctx, c); err != nil {
			return fmt.Errorf("seed center %s: %w", c.ID, err)
		}
	}
	for _, t := range f.Telematics {
		if err := s.AppendTelematics(ctx, t); err != nil {
			return fmt.Errorf("seed telematics %s: %w", t.ID, err)
		}
	}
	for _, p := range f.Predictions {
		if err := s.UpsertPrediction(ctx, p); err != nil {
			return fmt.Errorf("seed prediction %s: %w", p.ID, err)
		}
	}
	for _, a := range f.Appointments {
		if _, err := s.GetAppointment(ctx, a.ID); err == nil {
			continue
		} else if !fleet.IsNotFound(err) {
			return fmt.Errorf("seed appointment %s: %w", a.ID, err)
		}
		if _, err := s.CreateAppointment(ctx, a); err != nil {
			return fmt.Errorf("seed appointment %s: %w", a.ID, err)
		}
	}
	for _, r := range f.RcaCapa {
		if err := s.UpsertRcaCapaRecord(ctx, r); err != nil {
			return fmt.Errorf("seed rca/capa %s: %w", r.ID, err)
		}
	}
	return nil
}

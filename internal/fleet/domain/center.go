package fleet

import "strings"

// ServiceCenter is a workshop with a fixed number of service slots.
type ServiceCenter struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	City            string   `json:"city" yaml:"city"`
	Address         string   `json:"address" yaml:"address"`
	Capacity        int      `json:"capacity" yaml:"capacity"`
	CurrentLoad     int      `json:"current_load" yaml:"current_load"`
	OperatingHours  string   `json:"operating_hours" yaml:"operating_hours"`
	Specializations []string `json:"specializations,omitempty" yaml:"specializations"`
	// Version increments on every load change and guards compare-and-swap updates.
	Version int64 `json:"version" yaml:"-"`
}

// Validate enforces 0 <= CurrentLoad <= Capacity.
func (c ServiceCenter) Validate() error {
	if c.ID == "" {
		return Invalid("center.id", "required")
	}
	if c.Capacity < 0 {
		return Invalid("center.capacity", "must not be negative")
	}
	if c.CurrentLoad < 0 {
		return Invalid("center.current_load", "must not be negative")
	}
	if c.CurrentLoad > c.Capacity {
		return Invalid("center.current_load", "exceeds capacity")
	}
	return nil
}

// HasSpareCapacity reports whether at least one slot is free.
func (c ServiceCenter) HasSpareCapacity() bool {
	return c.CurrentLoad < c.Capacity
}

// Available returns the number of free slots.
func (c ServiceCenter) Available() int {
	if c.Capacity <= c.CurrentLoad {
		return 0
	}
	return c.Capacity - c.CurrentLoad
}

// Utilization returns CurrentLoad / Capacity. A zero-capacity center is fully utilized.
func (c ServiceCenter) Utilization() float64 {
	if c.Capacity <= 0 {
		return 1
	}
	return float64(c.CurrentLoad) / float64(c.Capacity)
}

// Specializes reports whether the center carries the given tag (case-insensitive).
func (c ServiceCenter) Specializes(tag string) bool {
	if tag == "" {
		return false
	}
	for _, s := range c.Specializations {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(tag)) {
			return true
		}
	}
	return false
}

package scheduling

import (
	"sort"
	"strings"
	"time"

	fleet "fleet-risk-engine/internal/fleet/domain"
)

// specializationKeywords maps service keywords to center specialization tags, checked in order.
var specializationKeywords = []struct {
	keywords []string
	tag      string
}{
	{[]string{" ev ", "electric vehicle"}, "EV Service"},
	{[]string{"battery", "electrical", "alternator"}, "Electrical"},
	{[]string{"transmission", "gearbox", "clutch"}, "Transmission"},
	{[]string{"engine", "oil", "coolant"}, "Engine"},
	{[]string{"tire", "tyre", "wheel"}, "Tire Center"},
	{[]string{"diagnostic", "software", "infotainment"}, "Diagnostics"},
}

// SpecializationFor derives the preferred center specialization from a service type or
// component name. It returns "" when nothing matches.
func SpecializationFor(serviceType string) string {
	text := " " + strings.ToLower(strings.TrimSpace(serviceType)) + " "
	for _, entry := range specializationKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.tag
			}
		}
	}
	return ""
}

// ServiceTypeForComponent names the service booked for a predicted component failure.
func ServiceTypeForComponent(component string) string {
	component = strings.TrimSpace(component)
	if component == "" {
		return "Inspection"
	}
	return component + " Service"
}

// RankCenters returns the centers with spare capacity in booking order: utilization asc,
// same city as the vehicle first, then id. When specialization is set, matching centers are
// returned; if none match and mandatory is false, every center with spare capacity is returned.
func RankCenters(centers []fleet.ServiceCenter, city, specialization string, mandatory bool) []fleet.ServiceCenter {
	var open, matching []fleet.ServiceCenter
	for _, center := range centers {
		if !center.HasSpareCapacity() {
			continue
		}
		open = append(open, center)
		if specialization != "" && center.Specializes(specialization) {
			matching = append(matching, center)
		}
	}

	candidates := open
	if specialization != "" {
		candidates = matching
		if len(matching) == 0 && !mandatory {
			candidates = open
		}
	}

	ranked := append([]fleet.ServiceCenter(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ua, ub := a.Utilization(), b.Utilization(); ua != ub {
			return ua < ub
		}
		sameA := strings.EqualFold(a.City, city)
		sameB := strings.EqualFold(b.City, city)
		if sameA != sameB {
			return sameA
		}
		return a.ID < b.ID
	})
	return ranked
}

// OpeningTime extracts the opening time from hours such as "8:00 AM - 8:00 PM" as "08:00".
// It returns fallback when the hours cannot be parsed.
func OpeningTime(hours, fallback string) string {
	opening := strings.TrimSpace(strings.SplitN(hours, "-", 2)[0])
	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04", "3 PM"} {
		if t, err := time.Parse(layout, strings.ToUpper(opening)); err == nil {
			return t.Format("15:04")
		}
	}
	return fallback
}

// InitialStatus is confirmed for urgent requests booked inside the urgent window, otherwise scheduled.
func InitialStatus(priority fleet.Priority, slot, now time.Time, urgentWindow time.Duration) fleet.AppointmentStatus {
	if priority == fleet.PriorityUrgent && !slot.After(now.Add(urgentWindow)) {
		return fleet.AppointmentConfirmed
	}
	return fleet.AppointmentScheduled
}

// SlotStart combines a calendar date and "15:04" time into an instant in loc.
func SlotStart(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(fleet.DateLayout+" 15:04", date+" "+clock, loc)
}

package domain

import "strings"

// ChangeSet records which course fields changed in an update. It drives
// the human-readable summary in the "course updated" email.
type ChangeSet struct {
	Schedule    bool
	Price       bool
	Platform    bool
	Instructors bool
	Materials   bool
}

func (c ChangeSet) Empty() bool {
	return !c.Schedule && !c.Price && !c.Platform && !c.Instructors && !c.Materials
}

// Describe returns a human-readable summary of the changed fields,
// e.g. "schedule, price". Falls back to "course details" when the
// caller did not flag any specific field.
func (c ChangeSet) Describe() string {
	var parts []string
	if c.Schedule {
		parts = append(parts, "schedule")
	}
	if c.Price {
		parts = append(parts, "price")
	}
	if c.Platform {
		parts = append(parts, "platform")
	}
	if c.Instructors {
		parts = append(parts, "instructors")
	}
	if c.Materials {
		parts = append(parts, "materials")
	}
	if len(parts) == 0 {
		return "course details"
	}
	return strings.Join(parts, ", ")
}

// Package policy decides which default reminders an occurrence is owed. It is
// pure: no I/O, no clock, fully determined by its inputs.
package policy

import (
	"reminder-engine/internal/models"
)

// Global is the subset of global configuration the policy consumes.
type Global struct {
	DefaultRemindersEnabled bool
	DefaultLeadMinutes      int
}

// Spec is one reminder the policy says should exist.
type Spec struct {
	Channel     string
	LeadMinutes int
}

// ComputeDefaultReminders maps an occurrence and its series configuration to
// the set of default reminders. Today that is at most one email reminder; the
// series override wins over the global lead time, and a series-level enable
// overrides a global disable. Zero lead minutes means "at occurrence start";
// negative values are clamped to zero.
func ComputeDefaultReminders(occ models.Occurrence, series models.SeriesConfig, global Global) []Spec {
	enabled := global.DefaultRemindersEnabled
	if series.RemindersEnabled != nil {
		enabled = *series.RemindersEnabled
	}
	if !enabled {
		return nil
	}

	lead := global.DefaultLeadMinutes
	if series.LeadMinutes != nil {
		lead = *series.LeadMinutes
	}
	if lead < 0 {
		lead = 0
	}

	return []Spec{{Channel: models.ChannelEmail, LeadMinutes: lead}}
}

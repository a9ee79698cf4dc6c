package policy

import (
	"testing"
	"time"

	"reminder-engine/internal/models"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestComputeDefaultReminders(t *testing.T) {
	occ := models.Occurrence{ID: "occ-1", ScheduledAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}

	cases := []struct {
		name     string
		series   models.SeriesConfig
		global   Global
		wantLead int
		wantNone bool
	}{
		{
			name:     "global default",
			global:   Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60},
			wantLead: 60,
		},
		{
			name:     "series lead override",
			series:   models.SeriesConfig{LeadMinutes: intPtr(15)},
			global:   Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60},
			wantLead: 15,
		},
		{
			name:     "globally disabled",
			global:   Global{DefaultRemindersEnabled: false, DefaultLeadMinutes: 60},
			wantNone: true,
		},
		{
			name:     "series enables over global disable",
			series:   models.SeriesConfig{RemindersEnabled: boolPtr(true)},
			global:   Global{DefaultRemindersEnabled: false, DefaultLeadMinutes: 60},
			wantLead: 60,
		},
		{
			name:     "series disables over global enable",
			series:   models.SeriesConfig{RemindersEnabled: boolPtr(false)},
			global:   Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60},
			wantNone: true,
		},
		{
			name:     "zero lead means at start",
			series:   models.SeriesConfig{LeadMinutes: intPtr(0)},
			global:   Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60},
			wantLead: 0,
		},
		{
			name:     "negative lead clamped",
			series:   models.SeriesConfig{LeadMinutes: intPtr(-5)},
			global:   Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60},
			wantLead: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			specs := ComputeDefaultReminders(occ, tc.series, tc.global)
			if tc.wantNone {
				if len(specs) != 0 {
					t.Fatalf("expected no reminders, got %d", len(specs))
				}
				return
			}
			if len(specs) != 1 {
				t.Fatalf("expected one reminder, got %d", len(specs))
			}
			if specs[0].Channel != models.ChannelEmail {
				t.Fatalf("expected email channel, got %q", specs[0].Channel)
			}
			if specs[0].LeadMinutes != tc.wantLead {
				t.Fatalf("expected lead %d, got %d", tc.wantLead, specs[0].LeadMinutes)
			}
		})
	}
}

func TestComputeDefaultRemindersIsDeterministic(t *testing.T) {
	occ := models.Occurrence{ID: "occ-1", ScheduledAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	global := Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 45}

	a := ComputeDefaultReminders(occ, models.SeriesConfig{}, global)
	b := ComputeDefaultReminders(occ, models.SeriesConfig{}, global)
	if len(a) != len(b) || a[0] != b[0] {
		t.Fatalf("policy not deterministic: %v vs %v", a, b)
	}
}

package validation

import (
	"errors"
	"testing"

	"github.com/jimdaga/capacity-planner/internal/apperr"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestValidate(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		schema string
		doc    string
		ok     bool
	}{
		{"valid check-in", CheckIn, `{"energy_level":8,"sleep_quality":7,"stress_level":3,"mood":"positive"}`, true},
		{"check-in out of range", CheckIn, `{"energy_level":11,"sleep_quality":7,"stress_level":3,"mood":"positive"}`, false},
		{"check-in unknown mood", CheckIn, `{"energy_level":5,"sleep_quality":5,"stress_level":5,"mood":"ecstatic"}`, false},
		{"check-in missing field", CheckIn, `{"energy_level":5,"sleep_quality":5,"mood":"neutral"}`, false},
		{"check-in fractional level", CheckIn, `{"energy_level":5.5,"sleep_quality":5,"stress_level":5,"mood":"neutral"}`, false},
		{"valid plan", Plan, `{"tasks":[{"title":"Write","estimated_minutes":30,"priority":"high"}]}`, true},
		{"plan zero estimate", Plan, `{"tasks":[{"title":"Write","estimated_minutes":0}]}`, false},
		{"plan bad priority", Plan, `{"tasks":[{"title":"Write","estimated_minutes":30,"priority":"urgent"}]}`, false},
		{"valid events", TrackerEvents, `{"events":[{"external_id":"a","status":"completed","occurred_at":"2026-04-06T10:00:00Z"}]}`, true},
		{"event bad status", TrackerEvents, `{"events":[{"external_id":"a","status":"deleted","occurred_at":"2026-04-06T10:00:00Z"}]}`, false},
		{"valid proposal", Proposal, `{"tasks":[{"task_id":1,"start":"2026-04-06T14:00:00Z","end":"2026-04-06T15:00:00Z"}],"reasoning":"ok"}`, true},
		{"proposal missing tasks", Proposal, `{"reasoning":"nothing"}`, false},
		{"proposal string id", Proposal, `{"tasks":[{"task_id":"1","start":"a","end":"b"}]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, []byte(tt.doc))
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				var ve *apperr.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("err = %v, want ValidationError", err)
				}
			}
		})
	}
}

func TestValidate_MalformedJSON(t *testing.T) {
	v := newValidator(t)
	if err := v.Validate(CheckIn, []byte(`{"energy_level":`)); apperr.Kind(err) != "validation" {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("nope", []byte(`{}`))
	if err == nil || apperr.Kind(err) == "validation" {
		t.Errorf("err = %v, want internal error", err)
	}
}

func TestDecode(t *testing.T) {
	v := newValidator(t)
	var dst struct {
		EnergyLevel int    `json:"energy_level"`
		Mood        string `json:"mood"`
	}
	if err := v.Decode(CheckIn, []byte(`{"energy_level":4,"sleep_quality":5,"stress_level":6,"mood":"neutral"}`), &dst); err != nil {
		t.Fatal(err)
	}
	if dst.EnergyLevel != 4 || dst.Mood != "neutral" {
		t.Errorf("decoded = %+v", dst)
	}
}

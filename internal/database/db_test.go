package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

func TestEnsureTimezoneUTC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds", "postgres://u:p@localhost:5432/planner?sslmode=disable", "TimeZone=UTC"},
		{"no query", "postgres://u:p@localhost:5432/planner", "TimeZone=UTC"},
		{"keeps explicit", "postgres://u:p@localhost:5432/planner?TimeZone=America%2FChicago", "TimeZone=America%2FChicago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ensureTimezoneUTC(tt.in)
			if err != nil {
				t.Fatalf("ensureTimezoneUTC: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want it to contain %q", got, tt.want)
			}
			if strings.Count(got, "TimeZone=") != 1 {
				t.Errorf("got %q, want exactly one TimeZone parameter", got)
			}
		})
	}
}

func TestSeedDevDataIsIdempotent(t *testing.T) {
	db, err := OpenSQLite("file:seed_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	now := time.Date(2026, 4, 6, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := SeedDevData(db, now); err != nil {
			t.Fatalf("SeedDevData run %d: %v", i+1, err)
		}
	}

	if err := Ping(context.Background(), db); err != nil {
		t.Errorf("Ping: %v", err)
	}

	counts := map[string]struct {
		model interface{}
		want  int64
	}{
		"users":     {&models.User{}, 1},
		"check-ins": {&models.CheckIn{}, 8},
		"plans":     {&models.DailyPlan{}, 8},
		"tasks":     {&models.PlanTask{}, 35},
	}
	for name, c := range counts {
		var got int64
		if err := db.Model(c.model).Count(&got).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		if got != c.want {
			t.Errorf("%s = %d, want %d", name, got, c.want)
		}
	}
}

package models

import (
	"testing"
	"time"
)

func TestDayKey_UsesUserTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 02:30 UTC on the 15th is still the evening of the 14th in New York.
	instant := time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC)

	got := DayKey(instant, ny)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DayKey(ny) = %v, want %v", got, want)
	}

	if utc := DayKey(instant, nil); !utc.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DayKey(nil) = %v, want 2026-03-15 UTC", utc)
	}
}

func TestDayKey_StableWithinDay(t *testing.T) {
	morning := time.Date(2026, 5, 1, 0, 0, 1, 0, time.UTC)
	night := time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC)
	if !DayKey(morning, time.UTC).Equal(DayKey(night, time.UTC)) {
		t.Error("instants on the same day produced different keys")
	}
}

func TestDayBounds(t *testing.T) {
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	start, end := DayBounds(day, time.UTC)
	if !start.Equal(day) || !end.Equal(day.AddDate(0, 0, 1)) {
		t.Errorf("DayBounds = [%v, %v)", start, end)
	}
}

func TestMomentumLog_AppendEvictsOldest(t *testing.T) {
	var log MomentumLog
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		log = log.Append(MomentumEntry{RecordedAt: base.AddDate(0, 0, i), State: "steady"}, 3)
	}

	if len(log) != 3 {
		t.Fatalf("len = %d, want 3", len(log))
	}
	if !log[0].RecordedAt.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("oldest kept = %v, want day 2", log[0].RecordedAt)
	}
	latest, ok := log.Latest()
	if !ok || !latest.RecordedAt.Equal(base.AddDate(0, 0, 4)) {
		t.Errorf("Latest = %v, %v", latest, ok)
	}
}

func TestMomentumLog_AppendDoesNotAliasInput(t *testing.T) {
	orig := MomentumLog{{State: "steady"}}
	next := orig.Append(MomentumEntry{State: "stalling"}, 5)
	next[0].State = "changed"
	if orig[0].State != "steady" {
		t.Error("Append mutated the receiver")
	}
}

func TestMomentumLog_DefaultLimit(t *testing.T) {
	var log MomentumLog
	for i := 0; i < DefaultMomentumLogSize+4; i++ {
		log = log.Append(MomentumEntry{State: "steady"}, 0)
	}
	if len(log) != DefaultMomentumLogSize {
		t.Errorf("len = %d, want %d", len(log), DefaultMomentumLogSize)
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityHigh.Rank() > PriorityMedium.Rank() && PriorityMedium.Rank() > PriorityLow.Rank()) {
		t.Error("priority ranks are not ordered high > medium > low")
	}
	if Priority("urgent").Valid() {
		t.Error("unknown priority reported valid")
	}
}

func TestUserLocation_FallsBackToUTC(t *testing.T) {
	u := &User{Timezone: "Not/AZone"}
	if u.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", u.Location())
	}
	var nilUser *User
	if nilUser.Location() != time.UTC {
		t.Error("nil user location should be UTC")
	}
}

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"crop_notify/internal/model"
	"crop_notify/internal/storage"
)

func TestKey(t *testing.T) {
	colombo := time.FixedZone("+0530", 5*3600+1800)
	s := New(storage.NewMemory(), colombo)
	ev := model.ReminderEvent{ID: "fert_12", Kind: model.KindFertilizer}

	// 20:00 UTC is already the next day in +05:30.
	at := time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)
	if diff := cmp.Diff("remind:fert:fert_12:2026-10-18", s.Key(ev, at)); diff != "" {
		t.Errorf("Key mismatch (-want +got):\n%s", diff)
	}
}

func TestSeenAndMark(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(), time.UTC)
	ev := model.ReminderEvent{ID: "appt_3", Kind: model.KindAppointment}
	day1 := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	seen, err := s.Seen(ctx, ev, day1)
	if err != nil || seen {
		t.Fatalf("Seen before mark = %v, %v; want false, nil", seen, err)
	}
	if err := s.Mark(ctx, ev, day1); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, _ := s.Seen(ctx, ev, day1.Add(10*time.Hour)); !seen {
		t.Error("expected event to be seen later the same day")
	}
	if seen, _ := s.Seen(ctx, ev, day2); seen {
		t.Error("expected a fresh key on the next day")
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(kv, time.UTC)

	for _, k := range []string{
		"remind:fert:fert_1:2026-10-01",
		"remind:fert:fert_1:2026-10-09",
		"remind:fert:fert_1:2026-10-10",
		"remind:appt:appt_2:2026-10-17",
		"remind:appt:appt_2:garbage",
		"notif_read:prediction:1",
	} {
		if err := kv.Set(ctx, k, "1"); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	now := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	removed, err := s.Prune(ctx, now, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if diff := cmp.Diff(2, removed); diff != "" {
		t.Errorf("removed count mismatch (-want +got):\n%s", diff)
	}

	left, _ := kv.Keys(ctx, "")
	want := []string{
		"notif_read:prediction:1",
		"remind:appt:appt_2:2026-10-17",
		"remind:appt:appt_2:garbage",
		"remind:fert:fert_1:2026-10-10",
	}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("remaining keys mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneDisabled(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(kv, time.UTC)
	_ = kv.Set(ctx, "remind:fert:fert_1:2000-01-01", "1")

	removed, err := s.Prune(ctx, time.Now(), 0)
	if err != nil || removed != 0 {
		t.Fatalf("Prune with zero retention = %d, %v; want 0, nil", removed, err)
	}
}

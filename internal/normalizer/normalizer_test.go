package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"crop_notify/internal/model"
)

var ignoreMetadata = cmpopts.IgnoreFields(model.ReminderEvent{}, "Metadata")

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestFertilizerEvents(t *testing.T) {
	due := mustTime(t, "2026-10-20T08:00:00Z")
	prev := mustTime(t, "2026-10-01T00:00:00Z")

	tests := []struct {
		name    string
		records []Record
		want    []model.ReminderEvent
	}{
		{
			name: "canonical field names",
			records: []Record{{
				"id": json.Number("12"), "next_application_date": "2026-10-20T08:00:00Z",
				"application_date": "2026-10-01", "location": "North plot",
				"crop": "Rice", "fertilizer_name": "Urea",
			}},
			want: []model.ReminderEvent{{
				ID: "fert_12", Kind: model.KindFertilizer, DueAt: due, PreviousAt: &prev,
				Title: "Rice", Detail: "Urea", Location: "North plot",
			}},
		},
		{
			name: "synonyms and defaults",
			records: []Record{{
				"id": 7.0, "nextDate": "2026-10-20T08:00:00Z", "field": "East",
			}},
			want: []model.ReminderEvent{{
				ID: "fert_7", Kind: model.KindFertilizer, DueAt: due,
				Title: "Crop", Detail: "Fertilizer", Location: "East",
			}},
		},
		{
			name: "records without due date or id are dropped",
			records: []Record{
				{"id": 1, "application_date": "2026-10-01"},
				{"id": 2, "next_application_date": "not a date"},
				{"id": 4, "next_application_date": "2026"},
				{"next_application_date": "2026-10-20T08:00:00Z"},
				nil,
			},
			want: []model.ReminderEvent{},
		},
		{
			name: "blank synonym falls through to the next one",
			records: []Record{{
				"id": "3", "next_application_date": " ", "date_next": "2026-10-20T08:00:00Z",
			}},
			want: []model.ReminderEvent{{
				ID: "fert_3", Kind: model.KindFertilizer, DueAt: due,
				Title: "Crop", Detail: "Fertilizer",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Events(tt.records, model.KindFertilizer, time.UTC)
			if diff := cmp.Diff(tt.want, got, ignoreMetadata); diff != "" {
				t.Errorf("Events() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppointmentEvents(t *testing.T) {
	due := mustTime(t, "2026-10-27T10:30:00Z")

	tests := []struct {
		name    string
		record  Record
		wantID  string
		wantDue time.Time
		wantWho string
		wantOK  bool
	}{
		{
			name:    "confirmed status with adviser object",
			record:  Record{"id": 5, "appointment_status": "Confirmed", "appointment_date": "2026-10-27T10:30:00Z", "adviser": map[string]any{"username": "dr_silva"}},
			wantID:  "appt_5",
			wantDue: due,
			wantWho: "dr_silva",
			wantOK:  true,
		},
		{
			name:    "boolean flag and split date time",
			record:  Record{"id": 6, "adviser_approved": true, "date": "2026-10-27", "time": "10:30", "advisor_name": "Perera"},
			wantID:  "appt_6",
			wantDue: due,
			wantWho: "Perera",
			wantOK:  true,
		},
		{
			name:    "approved status string adviser",
			record:  Record{"id": 8, "status": "approved", "scheduled_at": "2026-10-27T10:30:00Z", "advisor": "Kamal"},
			wantID:  "appt_8",
			wantDue: due,
			wantWho: "Kamal",
			wantOK:  true,
		},
		{
			name:    "confirmed plain status",
			record:  Record{"id": 7, "status": "confirmed", "appointment_date": "2026-10-27T10:30:00Z"},
			wantID:  "appt_7",
			wantDue: due,
			wantOK:  true,
		},
		{
			name:   "pending appointment dropped",
			record: Record{"id": 9, "appointment_status": "pending", "appointment_date": "2026-10-27T10:30:00Z"},
		},
		{
			name:   "approved but no date dropped",
			record: Record{"id": 10, "approved": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Events([]Record{tt.record}, model.KindAppointment, time.UTC)
			if !tt.wantOK {
				if len(got) != 0 {
					t.Fatalf("expected record to be dropped, got %+v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 event, got %d", len(got))
			}
			if diff := cmp.Diff(tt.wantID, got[0].ID); diff != "" {
				t.Errorf("ID mismatch (-want +got):\n%s", diff)
			}
			if !got[0].DueAt.Equal(tt.wantDue) {
				t.Errorf("DueAt = %v, want %v", got[0].DueAt, tt.wantDue)
			}
			if diff := cmp.Diff(tt.wantWho, got[0].Counterpart); diff != "" {
				t.Errorf("Counterpart mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventsSortedByDue(t *testing.T) {
	records := []Record{
		{"id": 1, "next_application_date": "2026-10-25"},
		{"id": 2, "next_application_date": "2026-10-18"},
		{"id": 3, "next_application_date": "2026-10-21"},
	}
	got := Events(records, model.KindFertilizer, time.UTC)

	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	if diff := cmp.Diff([]string{"fert_2", "fert_3", "fert_1"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveApproval(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		wantName string
		wantOK   bool
	}{
		{name: "completed", record: Record{"appointment_status": "completed"}, wantName: "appointment_status", wantOK: true},
		{name: "enum wins over flags", record: Record{"appointment_status": "confirmed", "approved": true}, wantName: "appointment_status", wantOK: true},
		{name: "confirmed plain status", record: Record{"status": "Confirmed"}, wantName: "status", wantOK: true},
		{name: "completed plain status", record: Record{"status": "completed"}, wantName: "status", wantOK: true},
		{name: "advisor flag", record: Record{"advisor_approved": true}, wantName: "advisor_approved", wantOK: true},
		{name: "false flags", record: Record{"approved": false, "adviser_approved": false}},
		{name: "string true is not a flag", record: Record{"approved": "true"}},
		{name: "empty", record: Record{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := ResolveApproval(tt.record)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Errorf("ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantName, name); diff != "" {
				t.Errorf("name mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	colombo := time.FixedZone("+0530", 5*3600+1800)

	tests := []struct {
		name   string
		in     any
		loc    *time.Location
		want   time.Time
		wantOK bool
	}{
		{name: "rfc3339", in: "2026-10-17T09:00:00Z", want: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC), wantOK: true},
		{name: "zone-less uses location", in: "2026-10-17 09:00:00", loc: colombo, want: time.Date(2026, 10, 17, 9, 0, 0, 0, colombo), wantOK: true},
		{name: "date only", in: "2026-10-17", want: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), wantOK: true},
		{name: "epoch millis", in: json.Number("1792224000000"), want: time.UnixMilli(1792224000000).UTC(), wantOK: true},
		{name: "epoch seconds", in: 1792224000.0, want: time.Unix(1792224000, 0).UTC(), wantOK: true},
		{name: "garbage", in: "soon"},
		{name: "year-only string", in: "2026"},
		{name: "compact date string", in: "20261017"},
		{name: "small number", in: json.Number("2026")},
		{name: "numeric string epoch", in: "1792224000", want: time.Unix(1792224000, 0).UTC(), wantOK: true},
		{name: "nil", in: nil},
		{name: "object", in: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in, tt.loc)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Fatalf("ok mismatch (-want +got):\n%s", diff)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOwnedBy(t *testing.T) {
	records := []Record{
		{"id": 1, "farmer_id": 42},
		{"id": 2, "adviser_id": "42"},
		{"id": 3, "farmer_id": 7},
	}

	got := OwnedBy(records, "42")
	if diff := cmp.Diff(2, len(got)); diff != "" {
		t.Errorf("owned count mismatch (-want +got):\n%s", diff)
	}

	fallback := OwnedBy(records, "99")
	if diff := cmp.Diff(3, len(fallback)); diff != "" {
		t.Errorf("fallback should keep everything (-want +got):\n%s", diff)
	}
}

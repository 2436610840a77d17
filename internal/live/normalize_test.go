package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

func TestNormalizeTime(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	local := want.In(time.FixedZone("IST", 5*3600+1800))

	tests := []struct {
		name string
		in   any
		ok   bool
	}{
		{"time", local, true},
		{"pointer", &local, true},
		{"bson datetime", primitive.NewDateTimeFromTime(want), true},
		{"bson timestamp", primitive.Timestamp{T: uint32(want.Unix())}, true},
		{"wire object", map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)}, true},
		{"admin wire object", map[string]any{"_seconds": want.Unix(), "_nanoseconds": 0}, true},
		{"rfc3339", "2026-03-14T09:26:53Z", true},
		{"offset string", "2026-03-14T14:56:53+05:30", true},
		{"plain date", "2026-03-14", false},
		{"name", "Ada Lovelace", false},
		{"number", 42, false},
		{"object with extra keys", map[string]any{"seconds": 1, "nanoseconds": 0, "x": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %v", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestNormalizeRecordRoundTrip(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := store.Record{
		"name":      "Ann",
		"createdAt": map[string]any{"seconds": created.Unix(), "nanoseconds": 0},
		"taskAttempts": map[string]any{
			"t1": map[string]any{"count": 2, "date": "2026-01-02"},
		},
		"checkinsAt": []any{"2026-01-02T03:04:05Z"},
		"reviewedAt": "2026-01-02T03:04:05Z",
	}

	got := NormalizeRecord("u1", rec)

	assert.Equal(t, "u1", got["id"])
	assert.Equal(t, created, got["createdAt"])
	attempts := got["taskAttempts"].(map[string]any)["t1"].(map[string]any)
	assert.Equal(t, "2026-01-02", attempts["date"])
	assert.Equal(t, []any{created}, got["checkinsAt"])
	assert.Equal(t, created, got["reviewedAt"])
	_, mutated := rec["id"]
	assert.False(t, mutated)
	assert.Nil(t, NormalizeRecord("x", nil))
}

func TestNormalizeRecordLeavesTextFieldsAlone(t *testing.T) {
	checkin := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := store.Record{
		"name":             "2026-01-02T03:04:05Z",
		"proof":            "2026-01-02 03:04:05+00:00",
		"note":             map[string]any{"text": "2026-01-02T03:04:05Z"},
		"tags":             []any{"2026-01-02T03:04:05Z"},
		"lastDailyCheckin": "2026-01-02T03:04:05Z",
		"At":               "2026-01-02T03:04:05Z",
	}

	got := NormalizeRecord("s1", rec)

	assert.Equal(t, "2026-01-02T03:04:05Z", got["name"])
	assert.Equal(t, "2026-01-02 03:04:05+00:00", got["proof"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["note"].(map[string]any)["text"])
	assert.Equal(t, []any{"2026-01-02T03:04:05Z"}, got["tags"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["At"])
	assert.Equal(t, checkin, got["lastDailyCheckin"])
}

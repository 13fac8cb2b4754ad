package database

import (
	"testing"
	"time"

	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/samples"
	"github.com/google/uuid"
)

func TestFetchRecordRoundTrip(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 60, HorizonHours: 4}
	snap := feed.Snapshot{
		ID:        uuid.New(),
		Seq:       12,
		FetchedAt: time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC),
		Buffer:    samples.New(g, []float64{1.5, 2.5}),
		OK:        true,
		RawCount:  2,
	}

	row, err := NewFetchRecord(snap)
	if err != nil {
		t.Fatalf("NewFetchRecord() error = %v", err)
	}
	if row.Total != 4 {
		t.Errorf("Total = %v, want 4", row.Total)
	}
	if row.Samples != "[0,0,1.5,2.5]" {
		t.Errorf("Samples = %s", row.Samples)
	}

	rec, err := row.Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	back := rec.Snapshot()
	if back.ID != snap.ID || back.Seq != 12 || back.Buffer.Total() != 4 {
		t.Errorf("round trip = %+v", back)
	}

	if _, err := (FetchRecord{ID: "x", Samples: "not json"}).Record(); err == nil {
		t.Error("Record() with corrupt samples should fail")
	}
}

package feed

import (
	"time"

	"github.com/chrissnell/fluidwatch/internal/samples"
	"github.com/google/uuid"
)

// Snapshot is the result of one fetch: either the normalized device buffer
// or, on failure, an all-zero buffer of the same length.
type Snapshot struct {
	ID        uuid.UUID
	Seq       uint64
	FetchedAt time.Time
	Buffer    samples.Buffer
	OK        bool
	Err       string
	RawCount  int
}

// Record is the flat, serializable form of a Snapshot used by storage engines.
type Record struct {
	ID              string    `json:"id" msgpack:"id"`
	Seq             uint64    `json:"seq" msgpack:"seq"`
	FetchedAt       time.Time `json:"fetched_at" msgpack:"fetched_at"`
	IntervalMinutes int       `json:"interval_minutes" msgpack:"interval_minutes"`
	HorizonHours    int       `json:"horizon_hours" msgpack:"horizon_hours"`
	Values          []float64 `json:"values" msgpack:"values"`
	OK              bool      `json:"ok" msgpack:"ok"`
	Error           string    `json:"error,omitempty" msgpack:"error,omitempty"`
	RawCount        int       `json:"raw_count" msgpack:"raw_count"`
}

// Record flattens the snapshot.
func (s Snapshot) Record() Record {
	g := s.Buffer.Geometry()
	return Record{
		ID:              s.ID.String(),
		Seq:             s.Seq,
		FetchedAt:       s.FetchedAt,
		IntervalMinutes: g.IntervalMinutes,
		HorizonHours:    g.HorizonHours,
		Values:          s.Buffer.Values(),
		OK:              s.OK,
		Error:           s.Err,
		RawCount:        s.RawCount,
	}
}

// Snapshot rebuilds a snapshot from its record, renormalizing the values.
func (r Record) Snapshot() Snapshot {
	id, _ := uuid.Parse(r.ID)
	g := samples.Geometry{IntervalMinutes: r.IntervalMinutes, HorizonHours: r.HorizonHours}
	return Snapshot{
		ID:        id,
		Seq:       r.Seq,
		FetchedAt: r.FetchedAt,
		Buffer:    samples.New(g, r.Values),
		OK:        r.OK,
		Err:       r.Error,
		RawCount:  r.RawCount,
	}
}

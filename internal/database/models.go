package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrissnell/fluidwatch/internal/feed"
)

// FetchRecord is one device fetch. fetched_at is part of the key so the
// table can be turned into a TimescaleDB hypertable.
type FetchRecord struct {
	ID              string    `gorm:"primaryKey;column:id"`
	Seq             uint64    `gorm:"column:seq;not null"`
	FetchedAt       time.Time `gorm:"primaryKey;column:fetched_at"`
	OK              bool      `gorm:"column:ok;not null"`
	Error           string    `gorm:"column:error"`
	RawCount        int       `gorm:"column:raw_count;not null"`
	IntervalMinutes int       `gorm:"column:interval_minutes;not null"`
	HorizonHours    int       `gorm:"column:horizon_hours;not null"`
	Total           float64   `gorm:"column:total;not null"`
	Samples         string    `gorm:"column:samples;type:jsonb;not null"`
}

// TableName specifies the table name for FetchRecord
func (FetchRecord) TableName() string {
	return "fluid_fetches"
}

// NewFetchRecord flattens a snapshot into its table row
func NewFetchRecord(snap feed.Snapshot) (FetchRecord, error) {
	r := snap.Record()
	values, err := json.Marshal(r.Values)
	if err != nil {
		return FetchRecord{}, fmt.Errorf("could not encode samples: %w", err)
	}
	return FetchRecord{
		ID:              r.ID,
		Seq:             r.Seq,
		FetchedAt:       r.FetchedAt,
		OK:              r.OK,
		Error:           r.Error,
		RawCount:        r.RawCount,
		IntervalMinutes: r.IntervalMinutes,
		HorizonHours:    r.HorizonHours,
		Total:           snap.Buffer.Total(),
		Samples:         string(values),
	}, nil
}

// Record converts the row back into the feed's serializable form
func (f FetchRecord) Record() (feed.Record, error) {
	r := feed.Record{
		ID:              f.ID,
		Seq:             f.Seq,
		FetchedAt:       f.FetchedAt,
		OK:              f.OK,
		Error:           f.Error,
		RawCount:        f.RawCount,
		IntervalMinutes: f.IntervalMinutes,
		HorizonHours:    f.HorizonHours,
	}
	if err := json.Unmarshal([]byte(f.Samples), &r.Values); err != nil {
		return feed.Record{}, fmt.Errorf("fetch %s: bad samples: %w", f.ID, err)
	}
	return r, nil
}

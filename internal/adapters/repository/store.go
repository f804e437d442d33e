// Package repository stores model records: identity, display name, artifact
// location and training status. Artifacts themselves live elsewhere.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/pkg/metrics"
)

// Store provides read/write access to model records.
type Store interface {
	// Create inserts rec. Returns ErrDuplicate if the id is taken.
	Create(ctx context.Context, rec model.Record) error
	// FindByID returns ErrNotFound if the id is unknown.
	FindByID(ctx context.Context, id string) (model.Record, error)
	// FindAll returns every record ordered by creation time, then id.
	FindAll(ctx context.Context) ([]model.Record, error)
	// UpdateStatus sets status and updatedAt and returns the stored record.
	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.Record, error)
	// Delete removes the record. Returns ErrNotFound if the id is unknown.
	Delete(ctx context.Context, id string) error
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

func validate(rec model.Record) error {
	if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("%w: id %q is not a uuid", ErrInvalidRecord, rec.ID)
	}
	if rec.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, rec.Status)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordStoreQueryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// RefreshGauges keeps the stored-records gauge current until ctx is done.
func RefreshGauges(ctx context.Context, s Store, interval time.Duration) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	update := func() {
		if n, err := s.Count(ctx); err == nil {
			metrics.UpdateModelsTotal(n)
		}
	}
	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

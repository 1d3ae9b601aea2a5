package repository

import (
	"context"

	"github.com/spec-kit/case-service/internal/persistence"
)

// SequenceRepository hands out year-scoped case numbers.
type SequenceRepository interface {
	// Next increments and returns the counter for year. Inside a transaction the
	// counter row stays locked until commit, so numbers are gap-free and unique.
	Next(ctx context.Context, year int) (int, error)
}

type sequenceRepository struct {
	db persistence.DB
}

// NewSequenceRepository builds repository.
func NewSequenceRepository(db persistence.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) Next(ctx context.Context, year int) (int, error) {
	const query = `
        INSERT INTO case_number_sequences (year, last_value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET last_value = case_number_sequences.last_value + 1
        RETURNING last_value`
	var value int
	if err := r.db.QueryRow(ctx, query, year).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

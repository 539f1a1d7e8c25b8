package diagnosis

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no diagnosis matches.
var ErrNotFound = errors.New("diagnosis not found")

type Repository interface {
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	// Delete removes the diagnosis and returns the deleted row.
	Delete(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Diagnosis, int, error)
	// LatestByPatient orders by timestamp, newest first; ties go to the most
	// recently inserted row.
	LatestByPatient(ctx context.Context, patientID string) (*Diagnosis, error)
	LatestByPatientName(ctx context.Context, name string) (*Diagnosis, error)
}

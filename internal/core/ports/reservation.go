package ports

import "context"

// ReservationStore holds in-flight port reservations.
type ReservationStore interface {
	// Reserve claims port. It reports false if the port is already reserved.
	Reserve(ctx context.Context, port int) (bool, error)
	Release(ctx context.Context, port int) error
	// Reserved returns every currently reserved port within [start, end].
	Reserved(ctx context.Context, start, end int) (map[int]struct{}, error)
}

package store

import (
	"errors"
	"time"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// ErrOrderNotDense is returned when a batch reorder would leave gaps in a
// novel's chapter order.
var ErrOrderNotDense = errors.New("chapter order must be contiguous from 0")

// README: Driver records as seen by the booking engine; only active drivers count toward capacity.
package driver

import (
	"errors"
	"time"

	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

var (
	ErrNotFound = errors.New("driver not found")
	ErrInactive = errors.New("driver is not active")
)

type Driver struct {
	ID        types.ID  `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (d Driver) FullName() string {
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

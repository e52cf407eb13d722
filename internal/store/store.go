package store

import (
	"errors"

	"github.com/duochat/duochat/internal/models"
)

var (
	// ErrNotFound is returned when no account exists for a username.
	ErrNotFound = errors.New("account not found")

	// ErrAlreadyExists is returned by Create for a taken username.
	ErrAlreadyExists = errors.New("account already exists")
)

// Store is the durable username -> account mapping. Accounts are read and
// written whole; Save replaces the full record. Implementations must make
// Save durable before returning so broadcasts that follow a mutation never
// outrun the write.
type Store interface {
	// Get returns the account for username, or ErrNotFound.
	Get(username string) (*models.Account, error)

	// Create registers a new account with the given credential, or fails
	// with ErrAlreadyExists.
	Create(username, credential string) (*models.Account, error)

	// Save persists the full account state.
	Save(acct *models.Account) error

	Close() error
}

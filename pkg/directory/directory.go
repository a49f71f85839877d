// Package directory resolves user records for address lookups.
package directory

import "context"

// User is a directory record. Address may be empty when the user never
// registered one.
type User struct {
	ID      string `json:"id"      validate:"required"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Directory looks up users by ID. Implementations return nil without error
// when the user is unknown.
type Directory interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

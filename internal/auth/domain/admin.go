package domain

import (
	"errors"
	"time"
)

// RoleAdmin is the only role accepted by the admin API
const RoleAdmin = "admin"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNotAdmin     = errors.New("token does not carry the admin role")
)

// Admin is the operator identity extracted from a bearer token
type Admin struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

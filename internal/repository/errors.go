package repository

import "errors"

// Sentinel errors returned by store implementations when a conditional write
// finds nothing to change. Services translate them into AppErrors.
var (
	ErrNotFound                  = errors.New("record not found")
	ErrTokenExpired              = errors.New("pairing token expired")
	ErrTokenExhausted            = errors.New("pairing token exhausted")
	ErrEmailTaken                = errors.New("email already registered")
	ErrDuplicateActiveConnection = errors.New("active connection already exists for pair")
	ErrAlreadyResponded          = errors.New("connection already responded")
	ErrConnectionNotActive       = errors.New("connection not accepted")
)

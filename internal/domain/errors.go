package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrExpired          = errors.New("invitation expired")
	ErrCapacityExceeded = errors.New("team is full")
	ErrAlreadyMember    = errors.New("already a member")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
)

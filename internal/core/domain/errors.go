package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientQuantity   = errors.New("insufficient quantity")
	ErrLocationMismatch       = errors.New("location mismatch")
	ErrInvalidItemType        = errors.New("invalid item type")
	ErrInvalidQuantity        = errors.New("quantity must be greater than zero")
	ErrInvalidQuantityForType = errors.New("invalid quantity for item type")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateRequest       = errors.New("duplicate request")
)

package model

import "errors"

// Storage sentinels returned (wrapped) by store implementations.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("concurrent modification")
	ErrDuplicate = errors.New("already exists")
)

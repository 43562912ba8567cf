package store

import "errors"

// Ошибки store.
var (
	// ErrNotFound — workflow с таким ID не зарегистрирован.
	ErrNotFound = errors.New("workflow definition not found")
)

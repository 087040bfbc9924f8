package services

import "errors"

// ErrInvalidInput marks errors caused by the caller's data. Handlers map it
// to 400; repositories.ErrNotFound and ErrConflict keep their own meaning.
var ErrInvalidInput = errors.New("invalid input")

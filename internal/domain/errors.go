package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateJob = errors.New("duplicate job id")
	ErrTerminalJob  = errors.New("job already terminal")
)

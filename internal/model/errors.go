package model

import (
	"errors"
)

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrInvalidTarget     = errors.New("invalid target")
	ErrMissingCredential = errors.New("missing credential")
	ErrResolve           = errors.New("resolution failed")
	ErrToolFailed        = errors.New("tool failed")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrStateMissing      = errors.New("state file missing")
	ErrStateCorrupt      = errors.New("state file corrupt")
)

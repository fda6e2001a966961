package service

import "errors"

// Sentinel errors for the service lifecycle.
var (
	ErrInvalidUpstream = errors.New("invalid upstream url")
	ErrNotStarted      = errors.New("service not started")
)

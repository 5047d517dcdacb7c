package models

import "errors"

var (
	ErrInvalidRange  = errors.New("invalid range")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrUpstreamFetch = errors.New("upstream fetch failure")
	ErrInvalidRecord = errors.New("invalid record")
	ErrNotFound      = errors.New("not found")
)

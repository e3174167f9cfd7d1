package sampler

import (
	"errors"
)

var (
	ErrResolution = errors.New("failed to resolve any peer address")
	ErrNoResponse = errors.New("no response from any peer")
)

package piclaim

import "errors"

var (
	// Configuration errors.
	ErrConfigMissing     = errors.New("piclaim: required configuration missing")
	ErrInvalidTargetTime = errors.New("piclaim: invalid target time")
	ErrInvalidAmount     = errors.New("piclaim: invalid amount")

	// Runtime errors.
	ErrInitialization = errors.New("piclaim: initialization failed")
	ErrUnknownMode    = errors.New("piclaim: unknown run mode")
)

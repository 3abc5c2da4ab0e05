package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate certificate")
	ErrUnknownIssuer  = errors.New("unknown issuer")
	ErrChainSignature = errors.New("certificate does not chain")
	ErrRemoteCall     = errors.New("remote call failed")
	ErrNoDefault      = errors.New("default policy not set")
)

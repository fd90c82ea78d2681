// Package core defines sentinel errors.
package core

import "errors"

var (
	// Capture handle errors
	ErrDeviceNotFound   = errors.New("netscope: device not found")
	ErrPermissionDenied = errors.New("netscope: permission denied")
	ErrDriver           = errors.New("netscope: capture driver error")
	ErrReadTimeout      = errors.New("netscope: read timed out")
	ErrInvalidFilter    = errors.New("netscope: invalid filter expression")

	// Session errors
	ErrSessionActive = errors.New("netscope: capture session already active")
	ErrNoSink        = errors.New("netscope: no sink registered")

	// Decoding errors
	ErrFrameTooShort    = errors.New("netscope: frame too short")
	ErrUnsupportedProto = errors.New("netscope: unsupported protocol")

	// Configuration errors
	ErrConfigInvalid = errors.New("netscope: invalid configuration")
)

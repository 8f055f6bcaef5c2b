package gateway

import "codeberg.org/mutker/thermalctl/internal/errors"

const (
	// Initialization Errors
	ErrInitFailed = errors.ErrorCode("gateway_init_failed")

	// Read Errors
	ErrRead = errors.ErrorCode("gateway_read_failed")

	// Write Errors
	ErrSetMode     = errors.ErrorCode("gateway_set_mode_failed")
	ErrSetFanBoost = errors.ErrorCode("gateway_set_fan_boost_failed")
	ErrInvalidMode = errors.ErrorCode("gateway_invalid_mode")
	ErrUnsupported = errors.ErrorCode("gateway_unsupported")
	ErrReadOnly    = errors.ErrorCode("gateway_read_only")
)

// IsReadError reports whether err came from a failed state read.
func IsReadError(err error) bool {
	return errors.HasCode(err, ErrRead)
}

package gateway

import (
	"context"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/thermal"
)

type readOnly struct {
	Gateway
}

// ReadOnly wraps gw so that reads pass through and every write is refused.
// It backs monitor mode.
func ReadOnly(gw Gateway) Gateway {
	return readOnly{gw}
}

func (readOnly) SetMode(context.Context, thermal.Mode) error {
	return errors.New().New(ErrReadOnly)
}

func (readOnly) SetFanBoost(context.Context, bool) error {
	return errors.New().New(ErrReadOnly)
}

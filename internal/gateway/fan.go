package gateway

import (
	"context"

	"codeberg.org/mutker/thermalctl/internal/errors"
)

// fanBoost reports whether the hwmon enable attribute holds the boost value.
func (h *Host) fanBoost() (bool, error) {
	value, ok, err := h.readAttr(h.cfg.FanBoostPath)
	if err != nil || !ok {
		return false, err
	}

	return value == h.cfg.FanBoostOn, nil
}

func (h *Host) SetFanBoost(_ context.Context, enabled bool) error {
	errFactory := errors.New()

	if h.cfg.FanBoostPath == "" {
		return errFactory.WithData(ErrUnsupported, "fan boost path not configured")
	}

	value := h.cfg.FanBoostOff
	if enabled {
		value = h.cfg.FanBoostOn
	}

	if err := h.writeAttr(h.cfg.FanBoostPath, value); err != nil {
		return errFactory.Wrap(ErrSetFanBoost, err)
	}

	h.logger.Debug().Bool("fan_boost", enabled).Str("value", value).Msg("Set fan boost")

	return nil
}

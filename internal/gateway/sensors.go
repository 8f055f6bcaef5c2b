package gateway

import (
	"context"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"github.com/prometheus/procfs/sysfs"
	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/sensors"
)

var sensorTemperatures = sensors.TemperaturesWithContext

func (h *Host) cpuTemperature(zones []sysfs.ClassThermalZoneStats) (float64, error) {
	if zone, ok := findZone(zones, h.cfg.CPUZoneType); ok {
		return milliToDegrees(zone.Temp), nil
	}

	if len(zones) == 0 {
		return 0, errors.New().WithData(ErrRead, "no thermal zones under "+h.cfg.SysRoot)
	}

	h.logger.Debug().
		Str("cpu_zone_type", h.cfg.CPUZoneType).
		Str("fallback_zone", zones[0].Type).
		Msg("CPU thermal zone type not found, using first zone")

	return milliToDegrees(zones[0].Temp), nil
}

// keyboardTemperature looks the sensor up among hwmon readings first and
// thermal zones second. A missing sensor reads as zero.
func (h *Host) keyboardTemperature(ctx context.Context, zones []sysfs.ClassThermalZoneStats) float64 {
	key := h.cfg.KeyboardSensor
	if key == "" {
		return 0
	}

	// gopsutil resolves hwmon under HOST_SYS, so point it at the same root
	// as the thermal zones. It returns partial results together with warnings.
	ctx = context.WithValue(ctx, common.EnvKey, common.EnvMap{common.HostSysEnvKey: h.cfg.SysRoot})
	temps, err := sensorTemperatures(ctx)
	for _, t := range temps {
		if t.SensorKey == key {
			return t.Temperature
		}
	}

	if zone, ok := findZone(zones, key); ok {
		return milliToDegrees(zone.Temp)
	}

	h.logger.Debug().
		Str("keyboard_sensor", key).
		AnErr("sensors_error", err).
		Msg("Keyboard sensor not found")

	return 0
}

func findZone(zones []sysfs.ClassThermalZoneStats, zoneType string) (sysfs.ClassThermalZoneStats, bool) {
	if zoneType == "" {
		return sysfs.ClassThermalZoneStats{}, false
	}

	for _, z := range zones {
		if z.Type == zoneType {
			return z, true
		}
	}

	return sysfs.ClassThermalZoneStats{}, false
}

func milliToDegrees(milli int64) float64 {
	return float64(milli) / milliDegreesPerDegree
}

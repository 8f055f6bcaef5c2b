package thermal

import (
	"fmt"
	"math"
	"strings"
)

// Zone is a severity bucket derived from CPU temperature.
type Zone int

const (
	ZoneCool Zone = iota
	ZoneComfort
	ZoneOptimal
	ZoneWarm
	ZoneHot
	ZoneCritical
)

// Lower bounds in degrees Celsius, inclusive, for every zone above Cool.
const (
	ComfortFrom  = 45.0
	OptimalFrom  = 55.0
	WarmFrom     = 65.0
	HotFrom      = 75.0
	CriticalFrom = 85.0
)

var zoneBounds = [...]struct {
	from float64
	zone Zone
}{
	{CriticalFrom, ZoneCritical},
	{HotFrom, ZoneHot},
	{WarmFrom, ZoneWarm},
	{OptimalFrom, ZoneOptimal},
	{ComfortFrom, ZoneComfort},
}

var zoneLabels = [...]string{
	ZoneCool:     "Cool",
	ZoneComfort:  "Comfort",
	ZoneOptimal:  "Optimal",
	ZoneWarm:     "Warm",
	ZoneHot:      "Hot",
	ZoneCritical: "Critical",
}

var zoneColors = [...]RGB{
	ZoneCool:     {100, 180, 255},
	ZoneComfort:  {100, 220, 200},
	ZoneOptimal:  {100, 220, 100},
	ZoneWarm:     {255, 210, 90},
	ZoneHot:      {255, 140, 60},
	ZoneCritical: {255, 60, 60},
}

// Zones returns every zone in increasing severity.
func Zones() []Zone {
	return []Zone{ZoneCool, ZoneComfort, ZoneOptimal, ZoneWarm, ZoneHot, ZoneCritical}
}

// Classify maps a CPU temperature to its zone. NaN and negative readings are
// Cool.
func Classify(cpuTemp float64) Zone {
	if math.IsNaN(cpuTemp) {
		return ZoneCool
	}

	for _, b := range zoneBounds {
		if cpuTemp >= b.from {
			return b.zone
		}
	}

	return ZoneCool
}

// Severity returns the rank of the zone, 0 for Cool.
func (z Zone) Severity() int {
	return int(z)
}

// Label returns the display label of the zone.
func (z Zone) Label() string {
	if z < ZoneCool || z > ZoneCritical {
		return fmt.Sprintf("Zone(%d)", int(z))
	}

	return zoneLabels[z]
}

func (z Zone) String() string {
	return z.Label()
}

// RGB returns the display colour identity of the zone.
func (z Zone) RGB() RGB {
	if z < ZoneCool || z > ZoneCritical {
		return zoneColors[ZoneCritical]
	}

	return zoneColors[z]
}

// MarshalText encodes the zone as its lower-case label.
func (z Zone) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(z.Label())), nil
}

// RGB is a display colour triple.
type RGB struct {
	R, G, B uint8
}

// Hex returns the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

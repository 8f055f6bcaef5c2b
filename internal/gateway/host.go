package gateway

import (
	"context"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/logger"
	"codeberg.org/mutker/thermalctl/internal/thermal"
	"github.com/prometheus/procfs/sysfs"
	"github.com/spf13/afero"
)

const (
	milliDegreesPerDegree = 1000
	kiloHertzPerMegaHertz = 1000
	defaultPerfPct        = 100
)

// Host is the sysfs-backed Gateway of a Linux laptop.
type Host struct {
	cfg      Config
	fs       afero.Fs
	sys      sysfs.FS
	profiles map[thermal.Mode]string
	modes    map[string]thermal.Mode
	logger   logger.Logger
}

var _ Gateway = (*Host)(nil)

func NewHost(cfg Config, log logger.Logger) (*Host, error) {
	errFactory := errors.New()

	if cfg.SysRoot == "" {
		return nil, errFactory.WithData(ErrInitFailed, "empty sysfs root")
	}

	sys, err := sysfs.NewFS(cfg.SysRoot)
	if err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}

	modes := make(map[string]thermal.Mode, len(profiles))
	for mode, label := range profiles {
		if !mode.Requestable() || label == "" {
			return nil, errFactory.WithData(ErrInitFailed, "invalid profile mapping for "+mode.Label())
		}
		if other, dup := modes[label]; dup {
			return nil, errFactory.WithData(ErrInitFailed,
				"profile "+label+" mapped to both "+other.Label()+" and "+mode.Label())
		}
		modes[label] = mode
	}

	h := &Host{
		cfg:      cfg,
		fs:       afero.NewBasePathFs(afero.NewOsFs(), cfg.SysRoot),
		sys:      sys,
		profiles: profiles,
		modes:    modes,
		logger:   log,
	}

	h.logger.Debug().
		Str("sysfs_root", cfg.SysRoot).
		Str("cpu_zone_type", cfg.CPUZoneType).
		Str("keyboard_sensor", cfg.KeyboardSensor).
		Str("fan_boost_path", cfg.FanBoostPath).
		Msg("Host gateway initialized")

	return h, nil
}

func (h *Host) ReadState(ctx context.Context) (thermal.State, error) {
	errFactory := errors.New()

	zones, err := h.sys.ClassThermalZoneStats()
	if err != nil {
		return thermal.State{}, errFactory.Wrap(ErrRead, err)
	}

	cpuTemp, err := h.cpuTemperature(zones)
	if err != nil {
		return thermal.State{}, err
	}

	state := thermal.State{
		CPUTemp:      cpuTemp,
		KeyboardTemp: h.keyboardTemperature(ctx, zones),
		Mode:         thermal.ModeUnknown,
		PerfPct:      defaultPerfPct,
	}

	profile, ok, err := h.readAttr(h.cfg.ProfilePath)
	if err != nil {
		return thermal.State{}, errFactory.Wrap(ErrRead, err)
	}
	if ok {
		state.PlatformProfile = profile
		state.Mode = h.modeOf(profile)
	}

	if state.PerfPct, err = h.readIntAttr(h.cfg.PerfPctPath, defaultPerfPct); err != nil {
		return thermal.State{}, errFactory.Wrap(ErrRead, err)
	}

	maxFreqKHz, err := h.readIntAttr(h.cfg.MaxFreqPath, 0)
	if err != nil {
		return thermal.State{}, errFactory.Wrap(ErrRead, err)
	}
	state.MaxFreqMHz = maxFreqKHz / kiloHertzPerMegaHertz

	if state.FanBoost, err = h.fanBoost(); err != nil {
		return thermal.State{}, errFactory.Wrap(ErrRead, err)
	}

	return state, nil
}

func (h *Host) SetMode(_ context.Context, mode thermal.Mode) error {
	errFactory := errors.New()

	if !mode.Requestable() {
		return errFactory.WithData(ErrInvalidMode, mode.Label())
	}

	label, ok := h.profiles[mode]
	if !ok {
		return errFactory.WithData(ErrUnsupported, "no platform profile for "+mode.Label())
	}

	choices, ok, err := h.readAttr(h.cfg.ProfileChoicesPath)
	if err != nil {
		return errFactory.Wrap(ErrSetMode, err)
	}
	if ok && !containsField(choices, label) {
		return errFactory.WithData(ErrUnsupported, "platform profile "+label+" not offered by host")
	}

	if err := h.writeAttr(h.cfg.ProfilePath, label); err != nil {
		return errFactory.Wrap(ErrSetMode, err)
	}

	h.logger.Debug().Str("mode", mode.Label()).Str("profile", label).Msg("Set platform profile")

	return nil
}

func (h *Host) modeOf(profile string) thermal.Mode {
	if mode, ok := h.modes[profile]; ok {
		return mode
	}

	return thermal.ModeUnknown
}

// readAttr returns the trimmed attribute value. A missing attribute is not an
// error: ok is false and the feature is treated as absent.
func (h *Host) readAttr(path string) (value string, ok bool, err error) {
	if path == "" {
		return "", false, nil
	}

	b, err := afero.ReadFile(h.fs, path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return strings.TrimSpace(string(b)), true, nil
}

func (h *Host) readIntAttr(path string, fallback int) (int, error) {
	s, ok, err := h.readAttr(path)
	if err != nil || !ok {
		return fallback, err
	}

	return strconv.Atoi(s)
}

func (h *Host) writeAttr(path, value string) error {
	if path == "" {
		return os.ErrNotExist
	}

	if _, err := h.fs.Stat(path); err != nil {
		return err
	}

	return afero.WriteFile(h.fs, path, []byte(value), 0o644)
}

func containsField(s, field string) bool {
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, "[]") == field {
			return true
		}
	}

	return false
}

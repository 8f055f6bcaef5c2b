package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/thermalctl/internal/errors"
	"codeberg.org/mutker/thermalctl/internal/gateway"
	"codeberg.org/mutker/thermalctl/internal/thermal"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "/etc/thermalctl.toml"
	DefaultEnvPrefix  = "THERMALCTL"
	DefaultLogLevel   = LogLevelWarning
)

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = pflag.ErrHelp

type Config struct {
	Interval          int           `mapstructure:"interval" validate:"gt=0"`
	TargetTemperature float64       `mapstructure:"target_temperature" validate:"gte=40,lte=80"`
	AutoControl       bool          `mapstructure:"auto_control"`
	HistorySize       int           `mapstructure:"history_size" validate:"gte=1"`
	StatusTTL         time.Duration `mapstructure:"status_ttl" validate:"gt=0"`
	RestoreOnExit     bool          `mapstructure:"restore_on_exit"`
	Monitor           bool          `mapstructure:"monitor"`
	LogLevel          LogLevel      `mapstructure:"log_level" validate:"oneof=debug info warning error"`

	Once     bool   `mapstructure:"once"`
	Format   string `mapstructure:"format" validate:"oneof=text json yaml"`
	SetMode  string `mapstructure:"set_mode"`
	FanBoost string `mapstructure:"fan_boost" validate:"omitempty,oneof=on off"`

	Sysfs   SysfsConfig   `mapstructure:"sysfs"`
	Sensors SensorsConfig `mapstructure:"sensors"`
	Fan     FanConfig     `mapstructure:"fan"`
	Modes   ModesConfig   `mapstructure:"modes"`
	Control ControlConfig `mapstructure:"control"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type SysfsConfig struct {
	Root               string `mapstructure:"root" validate:"required"`
	ProfilePath        string `mapstructure:"profile_path"`
	ProfileChoicesPath string `mapstructure:"profile_choices_path"`
	PerfPctPath        string `mapstructure:"perf_pct_path"`
	MaxFreqPath        string `mapstructure:"max_freq_path"`
}

type SensorsConfig struct {
	CPUZoneType    string `mapstructure:"cpu_zone_type"`
	KeyboardSensor string `mapstructure:"keyboard_sensor"`
}

type FanConfig struct {
	BoostPath string `mapstructure:"boost_path"`
	BoostOn   string `mapstructure:"boost_on"`
	BoostOff  string `mapstructure:"boost_off"`
}

// ModesConfig maps each mode to the host platform profile label.
type ModesConfig struct {
	Performance string `mapstructure:"performance" validate:"required"`
	Comfort     string `mapstructure:"comfort" validate:"required"`
	Balanced    string `mapstructure:"balanced" validate:"required"`
	Quiet       string `mapstructure:"quiet" validate:"required"`
	Auto        string `mapstructure:"auto" validate:"required"`
}

type ControlConfig struct {
	UnknownMode string `mapstructure:"unknown_mode" validate:"oneof=floor quiet"`
}

type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path" validate:"required_if=Enabled true"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gte=1"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" validate:"gt=0"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"interval":           "interval",
	"target-temperature": "target_temperature",
	"auto-control":       "auto_control",
	"history-size":       "history_size",
	"restore-on-exit":    "restore_on_exit",
	"monitor":            "monitor",
	"log-level":          "log_level",
	"once":               "once",
	"format":             "format",
	"set-mode":           "set_mode",
	"fan-boost":          "fan_boost",
	"metrics":            "metrics.enabled",
}

// fieldCodes picks a specific error code for well known invalid fields.
var fieldCodes = map[string]errors.ErrorCode{
	"Interval":          errors.ErrInvalidInterval,
	"TargetTemperature": errors.ErrInvalidTarget,
	"LogLevel":          errors.ErrInvalidLogLevel,
}

func setDefaults(v *viper.Viper) {
	gw := gateway.DefaultConfig()

	v.SetDefault("interval", 2)
	v.SetDefault("target_temperature", 55.0)
	v.SetDefault("auto_control", false)
	v.SetDefault("history_size", 60)
	v.SetDefault("status_ttl", 3*time.Second)
	v.SetDefault("restore_on_exit", true)
	v.SetDefault("monitor", false)
	v.SetDefault("log_level", string(DefaultLogLevel))

	v.SetDefault("once", false)
	v.SetDefault("format", "text")
	v.SetDefault("set_mode", "")
	v.SetDefault("fan_boost", "")

	v.SetDefault("sysfs.root", gw.SysRoot)
	v.SetDefault("sysfs.profile_path", gw.ProfilePath)
	v.SetDefault("sysfs.profile_choices_path", gw.ProfileChoicesPath)
	v.SetDefault("sysfs.perf_pct_path", gw.PerfPctPath)
	v.SetDefault("sysfs.max_freq_path", gw.MaxFreqPath)

	v.SetDefault("sensors.cpu_zone_type", gw.CPUZoneType)
	v.SetDefault("sensors.keyboard_sensor", "")

	v.SetDefault("fan.boost_path", "")
	v.SetDefault("fan.boost_on", gw.FanBoostOn)
	v.SetDefault("fan.boost_off", gw.FanBoostOff)

	for mode, label := range gw.Profiles {
		v.SetDefault("modes."+strings.ToLower(mode.Label()), label)
	}

	v.SetDefault("control.unknown_mode", "floor")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.db_path", "/var/lib/thermalctl/metrics.db")
	v.SetDefault("metrics.batch_size", 30)
	v.SetDefault("metrics.batch_timeout", time.Minute)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("thermalctl", pflag.ContinueOnError)

	fs.String("config", "", "Path to the TOML configuration file")
	fs.String("env-file", "", "Load environment variables from a dotenv file")
	fs.Int("interval", 2, "Seconds between polls")
	fs.Float64("target-temperature", 55, "CPU target temperature in °C (40-80)")
	fs.Bool("auto-control", false, "Step modes down automatically when over target")
	fs.Int("history-size", 60, "Number of samples kept in the rolling history")
	fs.Bool("restore-on-exit", true, "Restore the initial mode and fan state on exit")
	fs.Bool("monitor", false, "Only read and log the thermal state")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.Bool("once", false, "Print one snapshot and exit")
	fs.String("format", "text", "Snapshot format (text, json, yaml)")
	fs.String("set-mode", "", "Request a mode and exit")
	fs.String("fan-boost", "", "Switch fan boost on or off and exit")
	fs.Bool("metrics", false, "Record telemetry to the metrics database")

	return fs
}

// Load reads defaults, the config file, an optional dotenv file, the
// environment and command line flags, in increasing precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if envFile, _ := fs.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadEnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, explicit := configPath(fs, o)
	if err := readConfigFile(v, path, explicit); err != nil {
		return nil, err
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// configPath resolves the file to read. The flag wins over the environment,
// which wins over WithConfigFile. An explicitly empty environment value
// disables the file.
func configPath(fs *pflag.FlagSet, o *options) (path string, explicit bool) {
	if fs.Changed("config") {
		path, _ = fs.GetString("config")
		return path, true
	}

	if env, ok := os.LookupEnv(o.envPrefix + "_CONFIG"); ok {
		return env, env != ""
	}

	if o.configPath != "" {
		return o.configPath, true
	}

	return DefaultConfigFile, false
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}

		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks field constraints and the mode names.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}

		code := errors.ErrInvalidConfig
		if specific, ok := fieldCodes[fieldErrs[0].StructField()]; ok {
			code = specific
		}

		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
		}

		return errFactory.WithData(code, strings.Join(msgs, ", "))
	}

	if c.SetMode != "" {
		if _, err := thermal.ParseMode(c.SetMode); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	return nil
}

// Gateway builds the host gateway configuration.
func (c *Config) Gateway() gateway.Config {
	return gateway.Config{
		SysRoot:            c.Sysfs.Root,
		CPUZoneType:        c.Sensors.CPUZoneType,
		KeyboardSensor:     c.Sensors.KeyboardSensor,
		ProfilePath:        c.Sysfs.ProfilePath,
		ProfileChoicesPath: c.Sysfs.ProfileChoicesPath,
		PerfPctPath:        c.Sysfs.PerfPctPath,
		MaxFreqPath:        c.Sysfs.MaxFreqPath,
		FanBoostPath:       c.Fan.BoostPath,
		FanBoostOn:         c.Fan.BoostOn,
		FanBoostOff:        c.Fan.BoostOff,
		Profiles: map[thermal.Mode]string{
			thermal.ModePerformance: c.Modes.Performance,
			thermal.ModeComfort:     c.Modes.Comfort,
			thermal.ModeBalanced:    c.Modes.Balanced,
			thermal.ModeQuiet:       c.Modes.Quiet,
			thermal.ModeAuto:        c.Modes.Auto,
		},
	}
}

// IntervalDuration returns the poll period.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

package ec

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"github.com/spf13/afero"
)

const (
	defaultHwmonRoot = "/sys/class/hwmon"
	defaultDriver    = "steamdeck_hwmon"
	defaultFilePerm  = 0o644

	fanInputFile  = "fan1_input"
	fanTargetFile = "fan1_target"
	recalcFile    = "recalculate"
	batteryTemp   = "temp1_input"
	firmwareFile  = "device/firmware_version"
	boardIDFile   = "device/board_id"
	pdcsFile      = "device/pdcs"
	milliDegrees  = 1000.0
	hwmonGlob     = "hwmon*"
)

type Config struct {
	HwmonRoot string `mapstructure:"hwmon_root"`
	Driver    string `mapstructure:"driver"`
}

func DefaultConfig() Config {
	return Config{
		HwmonRoot: defaultHwmonRoot,
		Driver:    defaultDriver,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.HwmonRoot == "" {
		return errFactory.WithData(ErrInvalidConfig, "hwmon_root is empty")
	}
	if c.Driver == "" {
		return errFactory.WithData(ErrInvalidConfig, "driver is empty")
	}
	return nil
}

// Sysfs drives the controller through its hwmon driver's attribute files.
type Sysfs struct {
	fs  afero.Fs
	dir string
	log logger.Logger
	mu  sync.Mutex
}

// NewSysfs locates the hwmon directory whose name file matches cfg.Driver.
func NewSysfs(fs afero.Fs, cfg Config, log logger.Logger) (*Sysfs, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dirs, err := afero.Glob(fs, filepath.Join(cfg.HwmonRoot, hwmonGlob))
	if err != nil {
		return nil, errFactory.Wrap(ErrDeviceNotFound, err)
	}

	for _, dir := range dirs {
		name, err := afero.ReadFile(fs, filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(name)) == cfg.Driver {
			log.Debug().Str("path", dir).Str("driver", cfg.Driver).Msg("Found embedded controller")
			return &Sysfs{fs: fs, dir: dir, log: log}, nil
		}
	}

	return nil, errFactory.WithData(ErrDeviceNotFound,
		fmt.Sprintf("no %s device under %s", cfg.Driver, cfg.HwmonRoot))
}

// Path returns the hwmon directory in use.
func (s *Sysfs) Path() string {
	return s.dir
}

func (s *Sysfs) SetFanControlEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := "0"
	if enabled {
		value = "1"
	}
	if err := s.write(recalcFile, value); err != nil {
		return errors.New().Wrap(ErrFanControlFailed, err)
	}
	s.log.Debug().Bool("enabled", enabled).Msg("Auto fan control")

	return nil
}

func (s *Sysfs) SetFanDesiredRPM(rpm fan.RPM) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(fanTargetFile, strconv.FormatUint(uint64(rpm), 10)); err != nil {
		return errors.New().Wrap(ErrSetFanTarget, err)
	}

	return nil
}

func (s *Sysfs) GetFanRPM() (fan.RPM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rpm, err := s.readRPM(fanInputFile)
	if err != nil {
		return 0, errors.New().Wrap(ErrGetFanSpeed, err)
	}

	return rpm, nil
}

func (s *Sysfs) GetFanDesiredRPM() (fan.RPM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rpm, err := s.readRPM(fanTargetFile)
	if err != nil {
		return 0, errors.New().Wrap(ErrGetFanTarget, err)
	}

	return rpm, nil
}

func (s *Sysfs) GetBatteryTemperature() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read(batteryTemp)
	if err != nil {
		return 0, errors.New().Wrap(ErrBatteryReadFailed, err)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New().Wrap(ErrBatteryReadFailed, err)
	}

	return float64(v) / milliDegrees, nil
}

func (s *Sysfs) Info() (BoardInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	errFactory := errors.New()
	var info BoardInfo

	fields := []struct {
		file string
		dst  *string
	}{
		{firmwareFile, &info.FirmwareVersion},
		{boardIDFile, &info.BoardID},
		{pdcsFile, &info.PDCS},
	}
	for _, f := range fields {
		v, err := s.read(f.file)
		if err != nil {
			return BoardInfo{}, errFactory.Wrap(ErrBoardInfoFailed, err)
		}
		*f.dst = v
	}

	return info, nil
}

func (s *Sysfs) read(name string) (string, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

func (s *Sysfs) readRPM(name string) (fan.RPM, error) {
	raw, err := s.read(name)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, err
	}

	return fan.RPM(v), nil
}

func (s *Sysfs) write(name, value string) error {
	return afero.WriteFile(s.fs, filepath.Join(s.dir, name), []byte(value), os.FileMode(defaultFilePerm))
}

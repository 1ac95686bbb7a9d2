package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed floppy.toml
var defaultConfigData []byte

// Global state variables for the selected DMK geometry preset
var (
	PresetName      string
	Cyls            int
	Heads           int
	RPM             int
	RateKbps        int
	DoubleDensity   bool
	SectorsPerTrack int
	Presets         []string
	PresetMap       map[string]Preset // preset name -> geometry mapping
)

// Config represents the entire TOML configuration structure
type Config struct {
	Default string   `toml:"default"`
	Preset  []Preset `toml:"preset"`
}

// Preset describes a named DMK geometry, the parameters CreateImage needs
// plus sectorsPerTrack for FormatTrack's sector table.
type Preset struct {
	Name            string `toml:"name"`
	Cyls            int    `toml:"cyls"`
	Heads           int    `toml:"heads"`
	RPM             int    `toml:"rpm"`
	RateKbps        int    `toml:"ratekbps"`
	DoubleDensity   bool   `toml:"doubledensity"`
	SectorsPerTrack int    `toml:"sectorspertrack"`
}

// configPath determines the config file path based on the operating system
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		// Use AppData directory for Windows
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		// Create floppy subdirectory path
		configDir = filepath.Join(configDir, "floppy")
	default:
		// Linux/macOS: use home directory
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".floppy"), nil
}

// Initialize loads and validates the configuration file.
// If the config file doesn't exist, it creates it from the embedded default.
func Initialize() error {
	// 1. Determine config file path
	configPath, err := configPath()
	if err != nil {
		return err
	}

	// 2. Check if config file exists, create from embedded default if not
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Create parent directory if needed (for Windows)
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
		}

		// Write embedded default config to file
		if err := os.WriteFile(configPath, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", configPath, err)
		}
	}

	// 4. Parse TOML file
	var conf Config
	if _, err := toml.DecodeFile(configPath, &conf); err != nil {
		return fmt.Errorf("failed to parse TOML config at %s: %w", configPath, err)
	}

	// 5. Find and validate `default` key
	if conf.Default == "" {
		return errors.New("`default` key is missing or empty in config")
	}

	// 6. Build the preset map and validate every entry up front
	PresetMap = make(map[string]Preset, len(conf.Preset))
	Presets = make([]string, 0, len(conf.Preset))
	for _, p := range conf.Preset {
		if p.Cyls <= 0 {
			return fmt.Errorf("preset %q has invalid cyls: %d (must be positive)", p.Name, p.Cyls)
		}
		if p.Heads <= 0 {
			return fmt.Errorf("preset %q has invalid heads: %d (must be positive)", p.Name, p.Heads)
		}
		if p.RPM <= 0 {
			return fmt.Errorf("preset %q has invalid rpm: %d (must be positive)", p.Name, p.RPM)
		}
		if p.RateKbps <= 0 {
			return fmt.Errorf("preset %q has invalid ratekbps: %d (must be positive)", p.Name, p.RateKbps)
		}
		if p.SectorsPerTrack <= 0 {
			return fmt.Errorf("preset %q has invalid sectorspertrack: %d (must be positive)", p.Name, p.SectorsPerTrack)
		}
		PresetMap[p.Name] = p
		Presets = append(Presets, p.Name)
	}

	// 7. Search preset array for matching default name
	foundPreset, ok := PresetMap[conf.Default]
	if !ok {
		return fmt.Errorf("default preset %q not found in preset array", conf.Default)
	}

	// 8. Store preset properties in global variables
	PresetName = foundPreset.Name
	Cyls = foundPreset.Cyls
	Heads = foundPreset.Heads
	RPM = foundPreset.RPM
	RateKbps = foundPreset.RateKbps
	DoubleDensity = foundPreset.DoubleDensity
	SectorsPerTrack = foundPreset.SectorsPerTrack

	return nil
}

// GetPreset returns the named geometry preset.
// Returns an error if the preset name is not found in the configuration.
func GetPreset(name string) (Preset, error) {
	preset, ok := PresetMap[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset %q not found in configuration", name)
	}
	return preset, nil
}

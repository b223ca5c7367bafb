package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".dlveval"
	configFile string = "config.yml"
)

// Defaults used when the config file leaves an option unset.
const (
	DefaultMaxFuel           = 10000
	DefaultPageSize          = 256
	DefaultPageCacheSize     = 1024
	DefaultSymbolCacheSize   = 512
	DefaultLayoutCacheSize   = 256
	DefaultMaxAggregateBytes = 4096
	DefaultFormat            = "decimal"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// MaxFuel is the number of expression nodes a single evaluation may
	// visit before it fails with a timeout.
	MaxFuel int `yaml:"max-fuel,omitempty"`

	// PageSize is the granularity, in bytes, of the memory cache.
	PageSize int `yaml:"page-size,omitempty"`
	// PageCacheSize is the maximum number of cached memory pages.
	PageCacheSize int `yaml:"page-cache-size,omitempty"`
	// SymbolCacheSize is the maximum number of cached symbol lookups.
	SymbolCacheSize int `yaml:"symbol-cache-size,omitempty"`
	// LayoutCacheSize is the maximum number of cached type layouts.
	LayoutCacheSize int `yaml:"layout-cache-size,omitempty"`

	// MaxAggregateBytes is the maximum number of bytes loaded when a struct
	// or array is displayed.
	MaxAggregateBytes int `yaml:"max-aggregate-bytes,omitempty"`

	// If CheckArrayBounds is true indexing an array of known length out of
	// its bounds is an error. Indexing through pointers is never checked.
	CheckArrayBounds bool `yaml:"check-array-bounds"`

	// DefaultFormat is the format used to print values when none is given
	// (decimal, hex, char, pointer or struct).
	DefaultFormat string `yaml:"default-format,omitempty"`
}

// Default returns a Config with every option set to its default.
func Default() *Config {
	c := &Config{}
	c.Fill()
	return c
}

// Fill sets every unset option of c to its default.
func (c *Config) Fill() {
	if c.MaxFuel <= 0 {
		c.MaxFuel = DefaultMaxFuel
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageCacheSize <= 0 {
		c.PageCacheSize = DefaultPageCacheSize
	}
	if c.SymbolCacheSize <= 0 {
		c.SymbolCacheSize = DefaultSymbolCacheSize
	}
	if c.LayoutCacheSize <= 0 {
		c.LayoutCacheSize = DefaultLayoutCacheSize
	}
	if c.MaxAggregateBytes <= 0 {
		c.MaxAggregateBytes = DefaultMaxAggregateBytes
	}
	if c.DefaultFormat == "" {
		c.DefaultFormat = DefaultFormat
	}
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return Default(), fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return Default(), fmt.Errorf("unable to get config file path: %v", err)
	}
	return LoadConfigFrom(fullConfigFile)
}

// LoadConfigFrom reads the configuration from path, creating a default
// configuration file there if it does not exist.
func LoadConfigFrom(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		f, err = createDefaultConfig(path)
		if err != nil {
			return Default(), fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Default(), fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return Default(), fmt.Errorf("unable to decode config file: %v", err)
	}
	c.Fill()
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for dlveval.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Maximum number of expression nodes visited by a single evaluation.
# max-fuel: 10000

# Memory cache page size and number of cached pages.
# page-size: 256
# page-cache-size: 1024

# Number of cached symbol lookups and type layouts.
# symbol-cache-size: 512
# layout-cache-size: 256

# Maximum number of bytes loaded to display a struct or array.
# max-aggregate-bytes: 4096

# Uncomment to make indexing an array of known length out of bounds an error.
# check-array-bounds: true

# Format used to print values: decimal, hex, char, pointer or struct.
# default-format: decimal
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, configDir, file), nil
}

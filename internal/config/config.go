// Package config reads and writes the repository settings file, an INI
// document in git-config style stored at .snap/config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/systemshift/snapvcs/internal/history"
	"github.com/systemshift/snapvcs/internal/store"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

var ErrUnknownKey = errors.New("config key not found")

var defaults = map[string]string{
	"core.backend":       BackendFile,
	"core.compression":   string(store.CompressionZstd),
	"core.defaultBranch": "main",
}

// Config holds settings loaded from one file.
type Config struct {
	path string
	file *ini.File
}

// New returns a config with defaults only. Save writes it to path.
func New(path string) *Config {
	c := &Config{path: path, file: ini.Empty()}
	c.applyDefaults()
	return c
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	f, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	c := &Config{path: path, file: f}
	c.applyDefaults()
	for _, key := range []string{"core.backend", "core.compression", "core.defaultBranch"} {
		if err := validate(key, c.value(key)); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	for key, val := range defaults {
		section, name, _ := splitKey(key)
		if !c.file.Section(section).HasKey(name) {
			c.file.Section(section).Key(name).SetValue(val)
		}
	}
}

func splitKey(key string) (string, string, error) {
	section, name, ok := strings.Cut(key, ".")
	if !ok || section == "" || name == "" {
		return "", "", fmt.Errorf("invalid config key: %s", key)
	}
	return section, name, nil
}

// lookup finds a key without creating it. ini's Section and Key accessors
// add missing entries, which would then leak into List and Save.
func (c *Config) lookup(key string) (*ini.Key, error) {
	section, name, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	sec, err := c.file.GetSection(section)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	k, err := sec.GetKey(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return k, nil
}

func (c *Config) value(key string) string {
	k, err := c.lookup(key)
	if err != nil {
		return ""
	}
	return k.String()
}

// Get returns the value of a "section.name" key.
func (c *Config) Get(key string) (string, error) {
	k, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	return k.String(), nil
}

// Set assigns a "section.name" key. Known keys are validated.
func (c *Config) Set(key, value string) error {
	section, name, err := splitKey(key)
	if err != nil {
		return err
	}
	if err := validate(key, value); err != nil {
		return err
	}
	c.file.Section(section).Key(name).SetValue(value)
	return nil
}

func validate(key, value string) error {
	switch key {
	case "core.backend":
		if value != BackendFile && value != BackendBadger {
			return fmt.Errorf("core.backend: unknown backend %q", value)
		}
	case "core.compression":
		if _, err := store.ParseCompression(value); err != nil {
			return fmt.Errorf("core.compression: %w", err)
		}
	case "core.defaultBranch":
		if err := history.ValidateBranchName(value); err != nil {
			return fmt.Errorf("core.defaultBranch: %w", err)
		}
	}
	return nil
}

// List returns every "section.name=value" line in file order.
func (c *Config) List() []string {
	var out []string
	for _, sec := range c.file.Sections() {
		for _, k := range sec.Keys() {
			out = append(out, sec.Name()+"."+k.Name()+"="+k.String())
		}
	}
	return out
}

// Save writes the config atomically.
func (c *Config) Save() error {
	var buf bytes.Buffer
	if _, err := c.file.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := store.SafeWrite(c.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Backend returns core.backend.
func (c *Config) Backend() string {
	return c.value("core.backend")
}

// Compression returns core.compression.
func (c *Config) Compression() store.Compression {
	comp, err := store.ParseCompression(c.value("core.compression"))
	if err != nil {
		return store.CompressionNone
	}
	return comp
}

// DefaultBranch returns core.defaultBranch.
func (c *Config) DefaultBranch() string {
	return c.value("core.defaultBranch")
}

// Author formats user.name and user.email as "Name <email>". Missing parts
// are left out; with neither set it falls back to $USER.
func (c *Config) Author() string {
	name, email := c.value("user.name"), c.value("user.email")
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	case email != "":
		return "<" + email + ">"
	}
	return os.Getenv("USER")
}

package xcodeproj

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfigFileUnreadable is returned when an xcconfig file cannot be read
var ErrConfigFileUnreadable = errors.New("config file unreadable")

// XCConfig is a parsed .xcconfig file together with its includes
type XCConfig struct {
	path       string
	attributes map[string]string
	includes   []*XCConfig
}

// LoadXCConfig parses the xcconfig file at path. Includes are resolved
// relative to the including file; a missing optional include is ignored.
func LoadXCConfig(path string) (*XCConfig, error) {
	return loadXCConfig(path, map[string]bool{})
}

func loadXCConfig(path string, visiting map[string]bool) (*XCConfig, error) {
	clean := filepath.Clean(path)
	if visiting[clean] {
		return nil, fmt.Errorf("include cycle at %s", clean)
	}
	visiting[clean] = true
	defer delete(visiting, clean)

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigFileUnreadable, clean, err)
	}

	cfg := &XCConfig{
		path:       clean,
		attributes: make(map[string]string),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#include") {
			optional := strings.HasPrefix(line, "#include?")
			name := strings.Trim(strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "#include?"), "#include")), `"`)
			if name == "" {
				continue
			}
			if !filepath.IsAbs(name) {
				name = filepath.Join(filepath.Dir(clean), name)
			}
			include, err := loadXCConfig(name, visiting)
			if err != nil {
				if optional && errors.Is(err, ErrConfigFileUnreadable) {
					continue
				}
				return nil, fmt.Errorf("failed to include %s: %w", name, err)
			}
			cfg.includes = append(cfg.includes, include)
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), ";"))
		if key == "" {
			continue
		}
		cfg.attributes[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigFileUnreadable, clean, err)
	}

	return cfg, nil
}

// Path returns the path the file was loaded from
func (c *XCConfig) Path() string {
	return c.path
}

// Attributes returns the assignments made in this file, without includes
func (c *XCConfig) Attributes() map[string]string {
	attrs := make(map[string]string, len(c.attributes))
	for k, v := range c.attributes {
		attrs[k] = v
	}
	return attrs
}

// Settings returns the effective assignments. Later includes override earlier
// ones and the file's own assignments override all includes.
func (c *XCConfig) Settings() map[string]string {
	settings := make(map[string]string)
	for _, include := range c.includes {
		for k, v := range include.Settings() {
			settings[k] = v
		}
	}
	for k, v := range c.attributes {
		settings[k] = v
	}
	return settings
}

// Setting returns the effective value of key
func (c *XCConfig) Setting(key string) (string, bool) {
	value, ok := c.Settings()[key]
	return value, ok
}

// stripComment removes a trailing // comment and surrounding whitespace.
// Values such as http://host keep their slashes when the // is not preceded
// by whitespace or at line start.
func stripComment(line string) string {
	for i := 0; i+1 < len(line); i++ {
		if line[i] != '/' || line[i+1] != '/' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			line = line[:i]
			break
		}
	}
	return strings.TrimSpace(line)
}

package xcodeproj

import (
	"path/filepath"
	"sort"
	"strings"
)

// BuildConfiguration is an XCBuildConfiguration of a target or of the project
type BuildConfiguration struct {
	project *Project
	id      string
}

func (c *BuildConfiguration) ID() string {
	return c.id
}

func (c *BuildConfiguration) Name() string {
	name, _ := c.object()["name"].(string)
	return name
}

// Project returns the project owning the configuration
func (c *BuildConfiguration) Project() *Project {
	return c.project
}

// Setting returns the value of a build setting. List values are joined with
// spaces.
func (c *BuildConfiguration) Setting(key string) (string, bool) {
	value, ok := c.buildSettings(false)[key]
	if !ok {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case []interface{}:
		return strings.Join(stringList(v), " "), true
	default:
		return "", false
	}
}

func (c *BuildConfiguration) SetSetting(key, value string) {
	c.buildSettings(true)[key] = value
}

func (c *BuildConfiguration) DeleteSetting(key string) {
	delete(c.buildSettings(false), key)
}

// SettingKeys returns the names of all build settings, sorted
func (c *BuildConfiguration) SettingKeys() []string {
	settings := c.buildSettings(false)
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Settings returns a copy of all string valued build settings
func (c *BuildConfiguration) Settings() map[string]string {
	settings := make(map[string]string)
	for _, key := range c.SettingKeys() {
		if value, ok := c.Setting(key); ok {
			settings[key] = value
		}
	}
	return settings
}

// BaseConfigurationPath returns the path of the linked xcconfig file, or an
// empty string when the configuration has none
func (c *BuildConfiguration) BaseConfigurationPath() string {
	ref, _ := c.object()["baseConfigurationReference"].(string)
	if ref == "" || c.project.object(ref) == nil {
		return ""
	}
	return c.project.fileRealPath(ref)
}

// BaseConfiguration loads the linked xcconfig file. It returns nil and no
// error when no file is linked.
func (c *BuildConfiguration) BaseConfiguration() (*XCConfig, error) {
	path := c.BaseConfigurationPath()
	if path == "" {
		return nil, nil
	}
	return LoadXCConfig(path)
}

// SetBaseConfiguration links the configuration to the xcconfig file at path.
// Relative paths are resolved against the project directory.
func (c *BuildConfiguration) SetBaseConfiguration(path string) {
	sourceTree := "SOURCE_ROOT"
	if filepath.IsAbs(path) {
		sourceTree = "<absolute>"
	}
	ref := c.project.addObject("PBXFileReference", map[string]interface{}{
		"lastKnownFileType": "text.xcconfig",
		"name":              filepath.Base(path),
		"path":              path,
		"sourceTree":        sourceTree,
	})
	c.object()["baseConfigurationReference"] = ref
}

func (c *BuildConfiguration) buildSettings(create bool) map[string]interface{} {
	obj := c.object()
	settings, ok := obj["buildSettings"].(map[string]interface{})
	if !ok {
		settings = make(map[string]interface{})
		if create {
			obj["buildSettings"] = settings
		}
	}
	return settings
}

func (c *BuildConfiguration) object() map[string]interface{} {
	return c.project.object(c.id)
}

func (p *Project) configurationList(listID string) []*BuildConfiguration {
	var configs []*BuildConfiguration
	for _, id := range stringList(p.object(listID)["buildConfigurations"]) {
		if p.object(id) != nil {
			configs = append(configs, &BuildConfiguration{project: p, id: id})
		}
	}
	return configs
}

func (p *Project) addBuildConfiguration(listID, name string, settings map[string]string) *BuildConfiguration {
	buildSettings := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		buildSettings[k] = v
	}
	id := p.addObject("XCBuildConfiguration", map[string]interface{}{
		"buildSettings": buildSettings,
		"name":          name,
	})
	p.appendToList(listID, "buildConfigurations", id)
	return &BuildConfiguration{project: p, id: id}
}

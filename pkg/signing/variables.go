package signing

import (
	"errors"
	"regexp"
	"strings"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

// maxResolvePasses bounds how often a value is re-expanded before the
// partially resolved result is returned as is
const maxResolvePasses = 8

const inheritedKey = "inherited"

var (
	variablePattern     = regexp.MustCompile(`\$[{(]([^})]+)[})]|\$(\w+)`)
	nonWordPattern      = regexp.MustCompile(`\W`)
	nonWordOrUnderscore = regexp.MustCompile(`[\W_]`)
)

// Variable is a reference such as $KEY, ${KEY:lower} or $(KEY:mod1:mod2)
type Variable struct {
	Text      string
	Key       string
	Modifiers []string
}

// ParseVariables returns the variable references of value in order of
// appearance
func ParseVariables(value string) []Variable {
	var vars []Variable
	for _, match := range variablePattern.FindAllStringSubmatch(value, -1) {
		body := match[1]
		if body == "" {
			body = match[2]
		}
		parts := strings.Split(body, ":")
		vars = append(vars, Variable{
			Text:      match[0],
			Key:       parts[0],
			Modifiers: parts[1:],
		})
	}
	return vars
}

// ApplyModifiers transforms value with each modifier in turn. Unknown
// modifiers leave the value unchanged.
func ApplyModifiers(value string, modifiers []string) string {
	for _, modifier := range modifiers {
		switch modifier {
		case "identifier":
			value = nonWordPattern.ReplaceAllString(value, "_")
		case "rfc1034identifier":
			value = nonWordOrUnderscore.ReplaceAllString(value, "-")
		case "lower":
			value = strings.ToLower(value)
		case "upper":
			value = strings.ToUpper(value)
		}
	}
	return value
}

// Resolver expands variable references against a build configuration. Keys
// are looked up in the configuration's own settings, its xcconfig file, the
// project level configuration with the same name and that configuration's
// xcconfig file, in this order.
type Resolver struct {
	target *xcodeproj.Target
	config *xcodeproj.BuildConfiguration
	logger Logger

	xcconfigs map[string]*xcodeproj.XCConfig
}

// NewResolver creates a resolver for config. target may be nil for project
// level configurations.
func NewResolver(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration, logger Logger) *Resolver {
	if logger == nil {
		logger = discardLogger()
	}
	return &Resolver{
		target:    target,
		config:    config,
		logger:    logger,
		xcconfigs: make(map[string]*xcodeproj.XCConfig),
	}
}

// Resolve expands all variable references in value. References that cannot
// be resolved are kept literally.
func (r *Resolver) Resolve(value string) string {
	return r.resolveValue("", value)
}

// ResolveSetting returns the expanded value of the build setting key
func (r *Resolver) ResolveSetting(key string) (string, bool) {
	for _, source := range r.sources() {
		if raw, ok := source(key); ok && raw != "" {
			return r.resolveValue(key, raw), true
		}
	}
	return "", false
}

// resolveValue expands value until it stops changing. settingKey names the
// setting the value belongs to and is the target of $(inherited). References
// left unresolved get one more chance from the assignments of the
// configuration's own xcconfig file.
func (r *Resolver) resolveValue(settingKey, value string) string {
	value = r.expandPasses(settingKey, value)
	if fallback, ok := r.attributeFallback(value); ok {
		value = r.expandPasses(settingKey, fallback)
	}
	return value
}

// expandPasses runs expansion passes until the value is stable. A value with
// cyclic references is returned after the pass that detected the cycle.
func (r *Resolver) expandPasses(settingKey, value string) string {
	for pass := 0; pass < maxResolvePasses; pass++ {
		e := &expansion{visiting: make(map[string]bool)}
		next := r.expand(settingKey, value, e)
		if next == value || e.cyclic {
			return next
		}
		value = next
	}
	return value
}

// expansion tracks the keys being expanded within one pass
type expansion struct {
	visiting map[string]bool
	cyclic   bool
}

func (r *Resolver) expand(settingKey, value string, e *expansion) string {
	for _, v := range ParseVariables(value) {
		key := v.Key
		if strings.EqualFold(key, inheritedKey) {
			key = inheritedKey
		}
		if e.visiting[key] {
			e.cyclic = true
			continue
		}

		resolved, ok := r.lookup(key, settingKey)
		if !ok {
			continue
		}

		nestedKey := key
		if key == inheritedKey {
			nestedKey = settingKey
		}
		e.visiting[key] = true
		resolved = r.expand(nestedKey, resolved, e)
		delete(e.visiting, key)

		value = strings.Replace(value, v.Text, ApplyModifiers(resolved, v.Modifiers), 1)
	}
	return value
}

func (r *Resolver) lookup(key, settingKey string) (string, bool) {
	if key == inheritedKey {
		return r.inherited(settingKey), true
	}
	if value, ok := r.builtin(key); ok {
		return value, true
	}

	for _, source := range r.sources() {
		value, ok := source(key)
		if !ok || value == "" {
			continue
		}
		if strings.Contains(value, key) {
			r.logger.Info("Ignoring self referencing value", "key", key, "value", value)
			continue
		}
		return value, true
	}
	return "", false
}

// attributeFallback substitutes unresolved references with the raw
// assignments of the configuration's xcconfig file. Unlike lookup it accepts
// values that mention the key, as long as they do not repeat the reference.
func (r *Resolver) attributeFallback(value string) (string, bool) {
	vars := ParseVariables(value)
	if len(vars) == 0 {
		return value, false
	}
	base := r.xcconfig(r.config)
	if base == nil {
		return value, false
	}

	attrs := base.Attributes()
	changed := false
	for _, v := range vars {
		attr, ok := attrs[v.Key]
		if !ok || attr == "" || strings.Contains(attr, v.Text) {
			continue
		}
		r.logger.Info("Using xcconfig attribute", "key", v.Key, "value", attr, "path", base.Path())
		resolved := r.expandPasses(v.Key, attr)
		value = strings.Replace(value, v.Text, ApplyModifiers(resolved, v.Modifiers), 1)
		changed = true
	}
	return value, changed
}

// inherited returns the project level value of settingKey, or an empty
// string when there is none
func (r *Resolver) inherited(settingKey string) string {
	if settingKey == "" {
		return ""
	}
	project := r.projectConfig()
	if project == nil {
		return ""
	}
	if value, ok := project.Setting(settingKey); ok {
		return value
	}
	if base := r.xcconfig(project); base != nil {
		if value, ok := base.Setting(settingKey); ok {
			return value
		}
	}
	return ""
}

func (r *Resolver) builtin(key string) (string, bool) {
	project := r.config.Project()
	switch key {
	case "TARGET_NAME":
		if r.target == nil {
			return "", false
		}
		return r.target.Name(), true
	case "CONFIGURATION":
		return r.config.Name(), true
	case "PROJECT_NAME":
		return project.Name(), true
	case "SRCROOT", "SOURCE_ROOT", "PROJECT_DIR":
		return project.Dir(), true
	default:
		return "", false
	}
}

type settingSource func(key string) (string, bool)

func (r *Resolver) sources() []settingSource {
	sources := []settingSource{r.config.Setting}
	if base := r.xcconfig(r.config); base != nil {
		sources = append(sources, base.Setting)
	}
	if project := r.projectConfig(); project != nil {
		sources = append(sources, project.Setting)
		if base := r.xcconfig(project); base != nil {
			sources = append(sources, base.Setting)
		}
	}
	return sources
}

// projectConfig returns the project level configuration sharing the
// resolver's configuration name
func (r *Resolver) projectConfig() *xcodeproj.BuildConfiguration {
	if r.target == nil {
		return nil
	}
	config := r.config.Project().BuildConfiguration(r.config.Name())
	if config == nil || config.ID() == r.config.ID() {
		return nil
	}
	return config
}

// xcconfig loads the configuration's linked xcconfig file once. Unreadable
// files count as absent.
func (r *Resolver) xcconfig(config *xcodeproj.BuildConfiguration) *xcodeproj.XCConfig {
	if cached, ok := r.xcconfigs[config.ID()]; ok {
		return cached
	}
	base, err := config.BaseConfiguration()
	if err != nil {
		if errors.Is(err, xcodeproj.ErrConfigFileUnreadable) {
			r.logger.Info("Ignoring unreadable config file", "configuration", config.Name(), "error", err)
		} else {
			r.logger.Error("Failed to load config file", "configuration", config.Name(), "error", err)
		}
		base = nil
	}
	r.xcconfigs[config.ID()] = base
	return base
}

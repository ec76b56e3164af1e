package signing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

// BundleIDSource tells where a bundle identifier was found
type BundleIDSource string

const (
	SourceBuildSettings BundleIDSource = "build settings"
	SourceInfoPlist     BundleIDSource = "info plist file"
)

const (
	bundleIDSetting   = "PRODUCT_BUNDLE_IDENTIFIER"
	infoPlistSetting  = "INFOPLIST_FILE"
	infoPlistBundleID = "CFBundleIdentifier"
)

// ErrBundleIdentifierNotFound is matched by errors for configurations without
// a derivable bundle identifier
var ErrBundleIdentifierNotFound = errors.New("bundle identifier not found")

// BundleIdentifierNotFoundError names the configuration that has no bundle
// identifier
type BundleIdentifierNotFoundError struct {
	Target        string
	Configuration string
}

func (e *BundleIdentifierNotFoundError) Error() string {
	if e.Configuration == "" {
		return fmt.Sprintf("%s for target %q: no build configuration", ErrBundleIdentifierNotFound, e.Target)
	}
	return fmt.Sprintf("%s for target %q [%s]", ErrBundleIdentifierNotFound, e.Target, e.Configuration)
}

func (e *BundleIdentifierNotFoundError) Is(target error) bool {
	return target == ErrBundleIdentifierNotFound
}

// PlistReader reads a property list file into a dictionary
type PlistReader func(path string) (map[string]interface{}, error)

// BundleID returns the bundle identifier of a target's build configuration.
// PRODUCT_BUNDLE_IDENTIFIER is tried first, then CFBundleIdentifier of the
// Info.plist file named by INFOPLIST_FILE. Both are variable expanded.
func (m *Manager) BundleID(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration) (string, BundleIDSource, error) {
	notFound := &BundleIdentifierNotFoundError{Target: target.Name()}
	if config == nil {
		return "", "", notFound
	}
	notFound.Configuration = config.Name()

	resolver := NewResolver(target, config, m.logger)

	if bundleID, ok := resolver.ResolveSetting(bundleIDSetting); ok && bundleID != "" {
		return bundleID, SourceBuildSettings, nil
	}

	if bundleID := m.infoPlistBundleID(resolver, config); bundleID != "" {
		return bundleID, SourceInfoPlist, nil
	}

	return "", "", notFound
}

func (m *Manager) infoPlistBundleID(resolver *Resolver, config *xcodeproj.BuildConfiguration) string {
	infoPlistFile, ok := resolver.ResolveSetting(infoPlistSetting)
	if !ok || infoPlistFile == "" {
		return ""
	}

	path := infoPlistFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(config.Project().Dir(), path)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		m.logger.Info("Info.plist file not found", "path", path)
		return ""
	}

	info, err := m.readPlist(path)
	if err != nil {
		m.logger.Info("Failed to read Info.plist file", "path", path, "error", err)
		return ""
	}

	raw, _ := info[infoPlistBundleID].(string)
	if raw == "" {
		return ""
	}
	return resolver.Resolve(raw)
}

package signing

import (
	"path/filepath"
	"testing"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

func newTestProject(t *testing.T, name string) *xcodeproj.Project {
	t.Helper()
	return xcodeproj.New(filepath.Join(t.TempDir(), name+".xcodeproj"))
}

// addTarget creates a target with one configuration per name, all sharing
// the given settings
func addTarget(p *xcodeproj.Project, name, productType string, settings map[string]string, configs ...string) *xcodeproj.Target {
	target := p.AddTarget(name, productType)
	for _, config := range configs {
		copied := make(map[string]string, len(settings))
		for k, v := range settings {
			copied[k] = v
		}
		target.AddBuildConfiguration(config, copied)
	}
	return target
}

func setting(config *xcodeproj.BuildConfiguration, key string) string {
	value, _ := config.Setting(key)
	return value
}

func hasSetting(config *xcodeproj.BuildConfiguration, key string) bool {
	_, ok := config.Setting(key)
	return ok
}

func strPtr(s string) *string {
	return &s
}

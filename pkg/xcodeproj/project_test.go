package xcodeproj

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProjectRoundTrip saves an in-memory project and reads it back
func TestProjectRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "App.xcodeproj")

	p := New(path)
	p.AddBuildConfiguration("Release", map[string]string{"SWIFT_VERSION": "5.0"})
	app := p.AddTarget("App", ApplicationProductType)
	app.AddBuildConfiguration("Debug", map[string]string{"PRODUCT_BUNDLE_IDENTIFIER": "com.example.app"})
	app.AddBuildConfiguration("Release", map[string]string{"PRODUCT_BUNDLE_IDENTIFIER": "com.example.app"})
	kit := p.AddTarget("Kit", FrameworkProductType)
	app.AddDependency(kit)
	p.SetTargetAttribute(app.ID(), "DevelopmentTeam", "ABCD1234")

	require.NoError(t, p.Save())

	data, err := os.ReadFile(filepath.Join(path, "project.pbxproj"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "// !$*UTF8*$!")

	loaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "App", loaded.Name())
	assert.Equal(t, filepath.Dir(path), loaded.Dir())

	targets := loaded.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "App", targets[0].Name())
	assert.Equal(t, ProductTypeApplication, targets[0].ProductType())
	assert.Equal(t, ProductTypeFramework, targets[1].ProductType())
	assert.True(t, targets[0].IsNative())

	configs := targets[0].BuildConfigurations()
	require.Len(t, configs, 2)
	assert.Equal(t, "Debug", configs[0].Name())
	value, ok := configs[1].Setting("PRODUCT_BUNDLE_IDENTIFIER")
	assert.True(t, ok)
	assert.Equal(t, "com.example.app", value)

	release := loaded.BuildConfiguration("Release")
	require.NotNil(t, release)
	value, _ = release.Setting("SWIFT_VERSION")
	assert.Equal(t, "5.0", value)

	assert.Equal(t, "ABCD1234", loaded.TargetAttributes(targets[0].ID())["DevelopmentTeam"])

	deps := targets[0].Dependencies()
	require.Len(t, deps, 1)
	dep, err := deps[0].ResolveTarget()
	require.NoError(t, err)
	assert.Equal(t, "Kit", dep.Name())
}

// TestSettingMutation covers set, delete and list valued settings
func TestSettingMutation(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "App.xcodeproj"))
	config := p.AddTarget("App", ApplicationProductType).AddBuildConfiguration("Debug", nil)

	config.SetSetting("CODE_SIGN_STYLE", "Manual")
	config.SetSetting("DEVELOPMENT_TEAM", "TEAM")
	config.DeleteSetting("CODE_SIGN_STYLE")
	config.DeleteSetting("MISSING")

	_, ok := config.Setting("CODE_SIGN_STYLE")
	assert.False(t, ok)
	assert.Equal(t, []string{"DEVELOPMENT_TEAM"}, config.SettingKeys())

	config.buildSettings(true)["OTHER_LDFLAGS"] = []interface{}{"-ObjC", "-lz"}
	value, ok := config.Setting("OTHER_LDFLAGS")
	assert.True(t, ok)
	assert.Equal(t, "-ObjC -lz", value)
	assert.Equal(t, map[string]string{"DEVELOPMENT_TEAM": "TEAM", "OTHER_LDFLAGS": "-ObjC -lz"}, config.Settings())
}

// TestProxyDependencyAcrossProjects resolves a dependency living in another
// project through its container item proxy
func TestProxyDependencyAcrossProjects(t *testing.T) {
	dir := t.TempDir()

	lib := New(filepath.Join(dir, "Lib.xcodeproj"))
	kit := lib.AddTarget("Kit", FrameworkProductType)
	kit.AddBuildConfiguration("Release", nil)
	require.NoError(t, lib.Save())

	app := New(filepath.Join(dir, "App.xcodeproj"))
	target := app.AddTarget("App", ApplicationProductType)
	target.AddProxyDependency(kit)
	require.NoError(t, app.Save())

	loaded, err := Open(app.Path())
	require.NoError(t, err)
	deps := loaded.Target("App").Dependencies()
	require.Len(t, deps, 1)
	assert.Nil(t, deps[0].Target())

	resolved, err := deps[0].ResolveTarget()
	require.NoError(t, err)
	assert.Equal(t, "Kit", resolved.Name())
	assert.Equal(t, filepath.Join(dir, "Lib.xcodeproj"), resolved.Project().Path())
	assert.NotSame(t, loaded, resolved.Project())
}

// TestBrokenProxy reports a proxy whose remote target does not exist
func TestBrokenProxy(t *testing.T) {
	dir := t.TempDir()

	lib := New(filepath.Join(dir, "Lib.xcodeproj"))
	kit := lib.AddTarget("Kit", FrameworkProductType)

	app := New(filepath.Join(dir, "App.xcodeproj"))
	dep := app.AddTarget("App", ApplicationProductType).AddProxyDependency(kit)

	lib.RemoveTarget(kit)

	_, err := dep.ResolveTarget()
	assert.ErrorIs(t, err, ErrBrokenReference)
}

// TestSaveConflict rejects graphs with dangling dependency references
func TestSaveConflict(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "App.xcodeproj"))
	app := p.AddTarget("App", ApplicationProductType)
	kit := p.AddTarget("Kit", FrameworkProductType)
	dep := app.AddDependency(kit)

	// Remove only the proxy so the dependency dangles
	proxyID, _ := p.object(dep.ID())["targetProxy"].(string)
	delete(p.objects, proxyID)

	err := p.Save()
	assert.ErrorIs(t, err, ErrSaveConflict)

	_, statErr := os.Stat(filepath.Join(p.Path(), "project.pbxproj"))
	assert.True(t, os.IsNotExist(statErr))
}

// TestRemoveTarget drops the target and direct references to it
func TestRemoveTarget(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "App.xcodeproj"))
	app := p.AddTarget("App", ApplicationProductType)
	kit := p.AddTarget("Kit", FrameworkProductType)
	dep := app.AddDependency(kit)

	p.RemoveTarget(kit)

	assert.Len(t, p.Targets(), 1)
	assert.Nil(t, dep.Target())
	_, err := dep.ResolveTarget()
	assert.ErrorIs(t, err, ErrBrokenReference)
}

// TestOpenErrors checks missing and malformed project files
func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "Missing.xcodeproj"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "Bad.xcodeproj")
	require.NoError(t, os.MkdirAll(bad, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "project.pbxproj"), []byte("{ archiveVersion = 1; }"), 0644))
	_, err = Open(bad)
	assert.Error(t, err)
}

// TestProductTypes maps identifiers to product types
func TestProductTypes(t *testing.T) {
	tests := []struct {
		identifier string
		want       ProductType
		test       bool
	}{
		{ApplicationProductType, ProductTypeApplication, false},
		{FrameworkProductType, ProductTypeFramework, false},
		{BundleProductType, ProductTypeBundle, false},
		{UITestProductType, ProductTypeUITestBundle, true},
		{UnitTestProductType, ProductTypeUnitTestBundle, true},
		{"com.apple.product-type.app-extension", ProductTypeOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			got := ParseProductType(tt.identifier)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.test, got.IsTest())
		})
	}
}

// TestFileRealPath resolves group relative file references
func TestFileRealPath(t *testing.T) {
	p := New("/work/App.xcodeproj")

	group := p.addObject("PBXGroup", map[string]interface{}{
		"children":   []interface{}{},
		"path":       "Config",
		"sourceTree": "<group>",
	})
	mainGroup, _ := p.root()["mainGroup"].(string)
	p.appendToList(mainGroup, "children", group)

	file := p.addObject("PBXFileReference", map[string]interface{}{
		"path":       "Base.xcconfig",
		"sourceTree": "<group>",
	})
	p.appendToList(group, "children", file)

	abs := p.addObject("PBXFileReference", map[string]interface{}{
		"path":       "/etc/Shared.xcconfig",
		"sourceTree": "<absolute>",
	})
	root := p.addObject("PBXFileReference", map[string]interface{}{
		"path":       "Release.xcconfig",
		"sourceTree": "SOURCE_ROOT",
	})

	assert.Equal(t, "/work/Config/Base.xcconfig", p.fileRealPath(file))
	assert.Equal(t, "/etc/Shared.xcconfig", p.fileRealPath(abs))
	assert.Equal(t, "/work/Release.xcconfig", p.fileRealPath(root))
}

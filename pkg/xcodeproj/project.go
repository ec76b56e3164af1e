package xcodeproj

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"howett.net/plist"
)

const pbxprojHeader = "// !$*UTF8*$!\n"

var (
	// ErrSaveConflict is returned by Save when the object graph references
	// objects that no longer exist.
	ErrSaveConflict = errors.New("consistency issue: no parent for object")

	// ErrBrokenReference is returned when a dependency or proxy cannot be
	// resolved to a target.
	ErrBrokenReference = errors.New("broken target reference")
)

// Project is an Xcode project loaded from an .xcodeproj directory
type Project struct {
	path    string
	archive map[string]interface{}
	objects map[string]interface{}
	rootID  string

	// Projects referenced through container item proxies, keyed by path
	remotes map[string]*Project
}

// Open reads the project.pbxproj file of the .xcodeproj directory at path
func Open(path string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(path, "project.pbxproj"))
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var archive map[string]interface{}
	if _, err := plist.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", path, err)
	}

	objects, ok := archive["objects"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("project %s has no objects section", path)
	}

	rootID, _ := archive["rootObject"].(string)
	p := &Project{
		path:    path,
		archive: archive,
		objects: objects,
		rootID:  rootID,
		remotes: make(map[string]*Project),
	}
	if p.isa(rootID) != "PBXProject" {
		return nil, fmt.Errorf("PBXProject section not found in %s", path)
	}

	return p, nil
}

// New creates an empty project that will be saved to path
func New(path string) *Project {
	p := &Project{
		path:    path,
		objects: make(map[string]interface{}),
		remotes: make(map[string]*Project),
	}

	configList := p.addObject("XCConfigurationList", map[string]interface{}{
		"buildConfigurations":           []interface{}{},
		"defaultConfigurationIsVisible": "0",
	})
	mainGroup := p.addObject("PBXGroup", map[string]interface{}{
		"children":   []interface{}{},
		"sourceTree": "<group>",
	})
	p.rootID = p.addObject("PBXProject", map[string]interface{}{
		"attributes": map[string]interface{}{
			"TargetAttributes": map[string]interface{}{},
		},
		"buildConfigurationList": configList,
		"compatibilityVersion":   "Xcode 14.0",
		"mainGroup":              mainGroup,
		"projectDirPath":         "",
		"projectRoot":            "",
		"targets":                []interface{}{},
	})

	p.archive = map[string]interface{}{
		"archiveVersion": "1",
		"classes":        map[string]interface{}{},
		"objectVersion":  "56",
		"objects":        p.objects,
		"rootObject":     p.rootID,
	}
	return p
}

// Path returns the path of the .xcodeproj directory
func (p *Project) Path() string {
	return p.path
}

// Dir returns the directory containing the .xcodeproj, which is the
// project's source root
func (p *Project) Dir() string {
	return filepath.Dir(p.path)
}

// Name returns the project name, the .xcodeproj basename without extension
func (p *Project) Name() string {
	return strings.TrimSuffix(filepath.Base(p.path), ".xcodeproj")
}

// Targets returns all targets of the project in declaration order
func (p *Project) Targets() []*Target {
	var targets []*Target
	for _, id := range stringList(p.root()["targets"]) {
		if p.object(id) != nil {
			targets = append(targets, &Target{project: p, id: id})
		}
	}
	return targets
}

// Target returns the target with the given name, or nil
func (p *Project) Target(name string) *Target {
	for _, target := range p.Targets() {
		if target.Name() == name {
			return target
		}
	}
	return nil
}

// BuildConfigurations returns the project level build configurations
func (p *Project) BuildConfigurations() []*BuildConfiguration {
	listID, _ := p.root()["buildConfigurationList"].(string)
	return p.configurationList(listID)
}

// BuildConfiguration returns the project level build configuration with
// the given name, or nil
func (p *Project) BuildConfiguration(name string) *BuildConfiguration {
	for _, config := range p.BuildConfigurations() {
		if config.Name() == name {
			return config
		}
	}
	return nil
}

// AddBuildConfiguration adds a project level build configuration
func (p *Project) AddBuildConfiguration(name string, settings map[string]string) *BuildConfiguration {
	listID, _ := p.root()["buildConfigurationList"].(string)
	return p.addBuildConfiguration(listID, name, settings)
}

// TargetAttributes returns the per-target attribute table entry of the root
// object for the target with the given id
func (p *Project) TargetAttributes(targetID string) map[string]string {
	attrs := make(map[string]string)
	entry, _ := p.targetAttributes()[targetID].(map[string]interface{})
	for k, v := range entry {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}
	return attrs
}

// SetTargetAttribute sets key in the root object's attribute table entry of
// the target with the given id
func (p *Project) SetTargetAttribute(targetID, key, value string) {
	table := p.targetAttributes()
	entry, ok := table[targetID].(map[string]interface{})
	if !ok {
		entry = make(map[string]interface{})
		table[targetID] = entry
	}
	entry[key] = value
}

func (p *Project) targetAttributes() map[string]interface{} {
	root := p.root()
	attributes, ok := root["attributes"].(map[string]interface{})
	if !ok {
		attributes = make(map[string]interface{})
		root["attributes"] = attributes
	}
	table, ok := attributes["TargetAttributes"].(map[string]interface{})
	if !ok {
		table = make(map[string]interface{})
		attributes["TargetAttributes"] = table
	}
	return table
}

// Save validates the object graph and writes project.pbxproj
func (p *Project) Save() error {
	if err := p.checkConsistency(); err != nil {
		return err
	}

	data, err := plist.MarshalIndent(p.archive, plist.OpenStepFormat, "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	if err := os.MkdirAll(p.path, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	out := append([]byte(pbxprojHeader), data...)
	if err := os.WriteFile(filepath.Join(p.path, "project.pbxproj"), out, 0644); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	return nil
}

// checkConsistency reports proxies and dependencies pointing at objects that
// are not part of the graph, including proxies to removed targets of this
// project
func (p *Project) checkConsistency() error {
	ids := make([]string, 0, len(p.objects))
	for id := range p.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		obj := p.object(id)
		var refs []string
		switch p.isa(id) {
		case "PBXContainerItemProxy":
			refs = []string{"containerPortal"}
		case "PBXTargetDependency":
			refs = []string{"target", "targetProxy"}
		default:
			continue
		}
		for _, key := range refs {
			ref, ok := obj[key].(string)
			if ok && p.object(ref) == nil {
				return fmt.Errorf("%w %s (%s references missing %s)", ErrSaveConflict, id, key, ref)
			}
		}

		// Proxies into this project must point at a live object
		portal, _ := obj["containerPortal"].(string)
		remote, _ := obj["remoteGlobalIDString"].(string)
		if portal == p.rootID && remote != "" && p.object(remote) == nil {
			return fmt.Errorf("%w %s (proxy references missing %s)", ErrSaveConflict, id, remote)
		}
	}
	return nil
}

// remoteProject returns the project at path, opening it on first use
func (p *Project) remoteProject(path string) (*Project, error) {
	if filepath.Clean(path) == filepath.Clean(p.path) {
		return p, nil
	}
	if remote, ok := p.remotes[path]; ok {
		return remote, nil
	}
	remote, err := Open(path)
	if err != nil {
		return nil, err
	}
	p.remotes[path] = remote
	return remote, nil
}

func (p *Project) root() map[string]interface{} {
	return p.object(p.rootID)
}

func (p *Project) object(id string) map[string]interface{} {
	obj, _ := p.objects[id].(map[string]interface{})
	return obj
}

func (p *Project) isa(id string) string {
	isa, _ := p.object(id)["isa"].(string)
	return isa
}

func (p *Project) addObject(isa string, fields map[string]interface{}) string {
	id := newObjectID()
	fields["isa"] = isa
	p.objects[id] = fields
	return id
}

func (p *Project) appendToList(id, key, value string) {
	obj := p.object(id)
	list, _ := obj[key].([]interface{})
	obj[key] = append(list, value)
}

// fileRealPath returns the filesystem path of a PBXFileReference
func (p *Project) fileRealPath(id string) string {
	return p.realPath(id, 0)
}

func (p *Project) realPath(id string, depth int) string {
	obj := p.object(id)
	if obj == nil || depth > 32 {
		return p.Dir()
	}
	path, _ := obj["path"].(string)
	if filepath.IsAbs(path) {
		return path
	}

	sourceTree, _ := obj["sourceTree"].(string)
	switch sourceTree {
	case "<absolute>":
		return path
	case "<group>":
		parent := p.parentGroup(id)
		if parent == "" {
			return filepath.Join(p.Dir(), path)
		}
		return filepath.Join(p.realPath(parent, depth+1), path)
	default:
		return filepath.Join(p.Dir(), path)
	}
}

func (p *Project) parentGroup(id string) string {
	for groupID := range p.objects {
		switch p.isa(groupID) {
		case "PBXGroup", "PBXVariantGroup", "XCVersionGroup":
		default:
			continue
		}
		for _, child := range stringList(p.object(groupID)["children"]) {
			if child == id {
				return groupID
			}
		}
	}
	return ""
}

// newObjectID returns a 24 character uppercase hex identifier in the form
// Xcode uses for object keys
func newObjectID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(id[:24])
}

func stringList(v interface{}) []string {
	items, _ := v.([]interface{})
	list := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			list = append(list, s)
		}
	}
	return list
}

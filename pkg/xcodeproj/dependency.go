package xcodeproj

import (
	"fmt"
	"path/filepath"
)

// Dependency is a PBXTargetDependency. It points at a target either directly
// or through a container item proxy, which may live in another project.
type Dependency struct {
	project *Project
	id      string
}

func (d *Dependency) ID() string {
	return d.id
}

// Target returns the directly referenced target of the same project, or nil
func (d *Dependency) Target() *Target {
	ref, _ := d.object()["target"].(string)
	if ref == "" {
		return nil
	}
	return d.project.targetByID(ref)
}

// ResolveTarget returns the dependency's target, following the container
// item proxy into other projects when the target is not referenced directly
func (d *Dependency) ResolveTarget() (*Target, error) {
	if target := d.Target(); target != nil {
		return target, nil
	}

	proxyID, _ := d.object()["targetProxy"].(string)
	proxy := d.project.object(proxyID)
	if proxy == nil {
		return nil, fmt.Errorf("%w: dependency %s has no target proxy", ErrBrokenReference, d.id)
	}

	remoteID, _ := proxy["remoteGlobalIDString"].(string)
	portal, _ := proxy["containerPortal"].(string)

	container := d.project
	if portal != d.project.rootID {
		if d.project.object(portal) == nil {
			return nil, fmt.Errorf("%w: proxy %s points at missing container %s", ErrBrokenReference, proxyID, portal)
		}
		remote, err := d.project.remoteProject(d.project.fileRealPath(portal))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBrokenReference, err)
		}
		container = remote
	}

	target := container.targetByID(remoteID)
	if target == nil {
		return nil, fmt.Errorf("%w: target %s not found in %s", ErrBrokenReference, remoteID, container.Path())
	}
	return target, nil
}

func (d *Dependency) object() map[string]interface{} {
	return d.project.object(d.id)
}

// AddDependency makes t depend on another target of the same project
func (t *Target) AddDependency(dep *Target) *Dependency {
	p := t.project
	proxy := p.addObject("PBXContainerItemProxy", map[string]interface{}{
		"containerPortal":      p.rootID,
		"proxyType":            "1",
		"remoteGlobalIDString": dep.id,
		"remoteInfo":           dep.Name(),
	})
	id := p.addObject("PBXTargetDependency", map[string]interface{}{
		"target":      dep.id,
		"targetProxy": proxy,
	})
	p.appendToList(t.id, "dependencies", id)
	return &Dependency{project: p, id: id}
}

// AddProxyDependency makes t depend on a target of another project. The
// dependency is only reachable through a container item proxy.
func (t *Target) AddProxyDependency(dep *Target) *Dependency {
	p := t.project
	remotePath := dep.project.Path()
	if abs, err := filepath.Abs(remotePath); err == nil {
		remotePath = abs
	}

	portal := p.addObject("PBXFileReference", map[string]interface{}{
		"lastKnownFileType": "wrapper.pb-project",
		"name":              filepath.Base(remotePath),
		"path":              remotePath,
		"sourceTree":        "<absolute>",
	})
	proxy := p.addObject("PBXContainerItemProxy", map[string]interface{}{
		"containerPortal":      portal,
		"proxyType":            "1",
		"remoteGlobalIDString": dep.id,
		"remoteInfo":           dep.Name(),
	})
	id := p.addObject("PBXTargetDependency", map[string]interface{}{
		"name":        dep.Name(),
		"targetProxy": proxy,
	})
	p.appendToList(t.id, "dependencies", id)
	p.remotes[remotePath] = dep.project
	return &Dependency{project: p, id: id}
}

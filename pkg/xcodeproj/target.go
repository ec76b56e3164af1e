package xcodeproj

// Product type identifiers used by Xcode
const (
	ApplicationProductType = "com.apple.product-type.application"
	FrameworkProductType   = "com.apple.product-type.framework"
	BundleProductType      = "com.apple.product-type.bundle"
	UITestProductType      = "com.apple.product-type.bundle.ui-testing"
	UnitTestProductType    = "com.apple.product-type.bundle.unit-test"
)

// ProductType classifies what a target builds
type ProductType int

const (
	ProductTypeOther ProductType = iota
	ProductTypeApplication
	ProductTypeFramework
	ProductTypeBundle
	ProductTypeUITestBundle
	ProductTypeUnitTestBundle
)

// ParseProductType maps an Xcode product type identifier to a ProductType.
// Identifiers that are not listed above map to ProductTypeOther.
func ParseProductType(identifier string) ProductType {
	switch identifier {
	case ApplicationProductType:
		return ProductTypeApplication
	case FrameworkProductType:
		return ProductTypeFramework
	case BundleProductType:
		return ProductTypeBundle
	case UITestProductType:
		return ProductTypeUITestBundle
	case UnitTestProductType:
		return ProductTypeUnitTestBundle
	default:
		return ProductTypeOther
	}
}

func (t ProductType) String() string {
	switch t {
	case ProductTypeApplication:
		return "application"
	case ProductTypeFramework:
		return "framework"
	case ProductTypeBundle:
		return "bundle"
	case ProductTypeUITestBundle:
		return "ui-test bundle"
	case ProductTypeUnitTestBundle:
		return "unit-test bundle"
	default:
		return "other"
	}
}

// IsTest reports whether the product is a UI or unit test bundle
func (t ProductType) IsTest() bool {
	return t == ProductTypeUITestBundle || t == ProductTypeUnitTestBundle
}

// Target is a PBXNativeTarget, PBXAggregateTarget or PBXLegacyTarget
type Target struct {
	project *Project
	id      string
}

// ID returns the object identifier, used as key in the target attribute table
func (t *Target) ID() string {
	return t.id
}

// Project returns the project owning the target
func (t *Target) Project() *Project {
	return t.project
}

func (t *Target) Name() string {
	name, _ := t.object()["name"].(string)
	return name
}

// ProductTypeIdentifier returns the raw productType value
func (t *Target) ProductTypeIdentifier() string {
	productType, _ := t.object()["productType"].(string)
	return productType
}

func (t *Target) ProductType() ProductType {
	return ParseProductType(t.ProductTypeIdentifier())
}

// IsNative reports whether the target is a PBXNativeTarget
func (t *Target) IsNative() bool {
	return t.project.isa(t.id) == "PBXNativeTarget"
}

// BuildConfigurations returns the target's build configurations in order
func (t *Target) BuildConfigurations() []*BuildConfiguration {
	listID, _ := t.object()["buildConfigurationList"].(string)
	return t.project.configurationList(listID)
}

// BuildConfiguration returns the build configuration with the given name, or nil
func (t *Target) BuildConfiguration(name string) *BuildConfiguration {
	for _, config := range t.BuildConfigurations() {
		if config.Name() == name {
			return config
		}
	}
	return nil
}

// AddBuildConfiguration adds a build configuration to the target
func (t *Target) AddBuildConfiguration(name string, settings map[string]string) *BuildConfiguration {
	listID, _ := t.object()["buildConfigurationList"].(string)
	return t.project.addBuildConfiguration(listID, name, settings)
}

// Dependencies returns the target's dependencies in order
func (t *Target) Dependencies() []*Dependency {
	var deps []*Dependency
	for _, id := range stringList(t.object()["dependencies"]) {
		if t.project.object(id) != nil {
			deps = append(deps, &Dependency{project: t.project, id: id})
		}
	}
	return deps
}

func (t *Target) String() string {
	return t.Name()
}

func (t *Target) object() map[string]interface{} {
	return t.project.object(t.id)
}

// AddTarget adds a native target with the given product type identifier
func (p *Project) AddTarget(name, productType string) *Target {
	configList := p.addObject("XCConfigurationList", map[string]interface{}{
		"buildConfigurations":           []interface{}{},
		"defaultConfigurationIsVisible": "0",
	})
	id := p.addObject("PBXNativeTarget", map[string]interface{}{
		"buildConfigurationList": configList,
		"buildPhases":            []interface{}{},
		"buildRules":             []interface{}{},
		"dependencies":           []interface{}{},
		"name":                   name,
		"productName":            name,
		"productType":            productType,
	})
	p.appendToList(p.rootID, "targets", id)
	return &Target{project: p, id: id}
}

// RemoveTarget deletes the target from the project. Direct dependency
// references to it are dropped; proxies keep pointing at the removed id.
func (p *Project) RemoveTarget(target *Target) {
	root := p.root()
	var remaining []interface{}
	for _, id := range stringList(root["targets"]) {
		if id != target.id {
			remaining = append(remaining, id)
		}
	}
	root["targets"] = remaining

	for id := range p.objects {
		if p.isa(id) != "PBXTargetDependency" {
			continue
		}
		obj := p.object(id)
		if ref, _ := obj["target"].(string); ref == target.id {
			delete(obj, "target")
		}
	}
	delete(p.objects, target.id)
}

func (p *Project) targetByID(id string) *Target {
	switch p.isa(id) {
	case "PBXNativeTarget", "PBXAggregateTarget", "PBXLegacyTarget":
		return &Target{project: p, id: id}
	default:
		return nil
	}
}

package signing

import (
	"fmt"
	"path/filepath"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

// isExempt reports whether targets of the product type are never signed on
// their own
func isExempt(productType xcodeproj.ProductType) bool {
	return productType == xcodeproj.ProductTypeBundle || productType == xcodeproj.ProductTypeFramework
}

// neutralizeDependencies disables code signing for bundle and framework
// dependencies of target. Dependencies living in another project are saved
// right away. Broken dependency references are skipped.
func (m *Manager) neutralizeDependencies(target *xcodeproj.Target) error {
	deps := target.Dependencies()
	m.logger.Info("Handling dependencies", "target", target.Name(), "product_type", target.ProductType().String(), "count", len(deps))

	for _, dep := range deps {
		depTarget, err := dep.ResolveTarget()
		if err != nil {
			m.logger.Info("Skipping dependency without target", "target", target.Name(), "dependency", dep.ID(), "error", err)
			continue
		}
		if !depTarget.IsNative() {
			continue
		}
		if !isExempt(depTarget.ProductType()) {
			m.logger.Info("Skipping dependency", "dependency", depTarget.Name(), "product_type", depTarget.ProductType().String())
			continue
		}

		m.logger.Info("Disabling code signing for dependency", "dependency", depTarget.Name(), "product_type", depTarget.ProductType().String())
		skipTarget(depTarget)

		remote := depTarget.Project()
		if sameProject(remote, target.Project()) {
			continue
		}
		m.logger.Info("Saving remote project", "path", remote.Path())
		if err := remote.Save(); err != nil {
			return fmt.Errorf("failed to save project %s: %w", remote.Path(), err)
		}
	}
	return nil
}

// hostApplication returns the first native application target that target
// depends on, or nil
func hostApplication(target *xcodeproj.Target) *xcodeproj.Target {
	for _, dep := range target.Dependencies() {
		depTarget, err := dep.ResolveTarget()
		if err != nil || !depTarget.IsNative() {
			continue
		}
		if depTarget.ProductType() == xcodeproj.ProductTypeApplication {
			return depTarget
		}
	}
	return nil
}

func sameProject(a, b *xcodeproj.Project) bool {
	return a == b || filepath.Clean(a.Path()) == filepath.Clean(b.Path())
}

package signing

import (
	"errors"
	"fmt"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

const uiTestBundleSuffix = ".xctrunner"

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger for progress messages
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTestPolicy sets what happens to test targets without a profile
func WithTestPolicy(policy TestPolicy) Option {
	return func(m *Manager) {
		if policy != "" {
			m.testPolicy = policy
		}
	}
}

// WithPlistReader replaces the Info.plist reader
func WithPlistReader(reader PlistReader) Option {
	return func(m *Manager) {
		if reader != nil {
			m.readPlist = reader
		}
	}
}

// Manager applies provisioning profiles to the targets of a project
type Manager struct {
	profiles   []Profile
	logger     Logger
	testPolicy TestPolicy
	readPlist  PlistReader
	tracker    *Tracker
}

// NewManager creates a manager for the ordered profile list
func NewManager(profiles []Profile, opts ...Option) *Manager {
	m := &Manager{
		profiles:   append([]Profile(nil), profiles...),
		logger:     discardLogger(),
		testPolicy: SkipUnmatchedTests,
		readPlist:  xcodeproj.ReadPlist,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.tracker = NewTracker(m.logger)
	return m
}

// Records returns every outcome tracked by the last Apply, test targets
// included
func (m *Manager) Records() []TargetInfo {
	return m.tracker.Records()
}

// Apply mutates the signing settings of every native target of project and
// returns the outcomes of non test targets in processing order. The project
// itself is not saved; dependencies in other projects are.
func (m *Manager) Apply(project *xcodeproj.Project) ([]TargetInfo, error) {
	m.tracker = NewTracker(m.logger)
	m.logger.Info("Configure code signing settings", "project", project.Path())

	for _, target := range project.Targets() {
		if err := m.applyTarget(target); err != nil {
			return nil, err
		}
	}
	return m.tracker.Report(), nil
}

// ApplyAndSave runs Apply and saves the project. A save conflict voids the
// outcomes without failing the run.
func (m *Manager) ApplyAndSave(project *xcodeproj.Project) ([]TargetInfo, error) {
	infos, err := m.Apply(project)
	if err != nil {
		return nil, err
	}

	if err := project.Save(); err != nil {
		m.logger.Error("Failed to save project", "project", project.Path(), "error", err)
		if errors.Is(err, xcodeproj.ErrSaveConflict) {
			m.logger.Info("Ignoring known project consistency issue")
			return []TargetInfo{}, nil
		}
		return nil, fmt.Errorf("failed to save project %s: %w", project.Path(), err)
	}
	return infos, nil
}

// ApplyProfiles applies profiles to project and returns the outcomes of non
// test targets. The project is mutated in place but not saved.
func ApplyProfiles(project *xcodeproj.Project, profiles []Profile, opts ...Option) ([]TargetInfo, error) {
	return NewManager(profiles, opts...).Apply(project)
}

func (m *Manager) applyTarget(target *xcodeproj.Target) error {
	if !target.IsNative() {
		return nil
	}

	if err := m.neutralizeDependencies(target); err != nil {
		return err
	}

	if isExempt(target.ProductType()) {
		m.logger.Info("Disabling code signing", "target", target.Name(), "product_type", target.ProductType().String())
		skipTarget(target)
		return nil
	}

	for _, config := range target.BuildConfigurations() {
		m.applyConfiguration(target, config)
	}
	return nil
}

func (m *Manager) applyConfiguration(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration) {
	bundleID, source, err := m.BundleID(target, config)
	if err != nil {
		m.logger.Info("No bundle id found", "target", target.Name(), "configuration", config.Name())
		return
	}
	m.logger.Info("Resolved bundle id", "target", target.Name(), "configuration", config.Name(), "bundle_id", bundleID, "source", string(source))

	productType := target.ProductType()
	profileBundleID := bundleID
	if productType == xcodeproj.ProductTypeUITestBundle {
		profileBundleID += uiTestBundleSuffix
	}

	profile := MatchProfile(profileBundleID, m.profiles)
	if profile == nil && productType == xcodeproj.ProductTypeUnitTestBundle {
		profile = m.hostProfile(target, config)
	}

	m.tracker.Track(target, config, bundleID, profile)
	action := SelectAction(profile, productType, m.testPolicy)
	m.logger.Info("Applying code signing action", "target", target.Name(), "configuration", config.Name(), "action", action.String())
	applyAction(action, target, config, profile)
}

// hostProfile matches the host application's same named configuration of a
// unit test target
func (m *Manager) hostProfile(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration) *Profile {
	host := hostApplication(target)
	if host == nil {
		return nil
	}
	hostConfig := host.BuildConfiguration(config.Name())
	bundleID, _, err := m.BundleID(host, hostConfig)
	if err != nil {
		return nil
	}
	m.logger.Info("Using host application bundle id", "target", target.Name(), "host", host.Name(), "bundle_id", bundleID)
	return MatchProfile(bundleID, m.profiles)
}

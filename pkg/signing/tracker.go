package signing

import (
	"sort"
	"strings"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

// TargetInfo records the outcome for one target configuration
type TargetInfo struct {
	BundleID                string  `json:"bundle_id"`
	TargetName              string  `json:"target_name"`
	BuildConfiguration      string  `json:"build_configuration"`
	ProjectName             string  `json:"project_name"`
	ProvisioningProfileUUID *string `json:"provisioning_profile_uuid"`

	productType xcodeproj.ProductType
}

// HasProfile reports whether a profile specifier was recorded
func (t TargetInfo) HasProfile() bool {
	return t.ProvisioningProfileUUID != nil
}

// Tracker accumulates target infos in processing order
type Tracker struct {
	logger  Logger
	records []TargetInfo
}

// NewTracker creates an empty tracker
func NewTracker(logger Logger) *Tracker {
	if logger == nil {
		logger = discardLogger()
	}
	return &Tracker{logger: logger}
}

// Track records the outcome for a target configuration. The profile
// specifier is only kept for matched targets that are not unit tests.
func (t *Tracker) Track(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration, bundleID string, profile *Profile) TargetInfo {
	productType := target.ProductType()
	info := TargetInfo{
		BundleID:           bundleID,
		TargetName:         target.Name(),
		BuildConfiguration: config.Name(),
		ProjectName:        target.Project().Name(),
		productType:        productType,
	}

	isUnitTest := productType == xcodeproj.ProductTypeUnitTestBundle
	if profile != nil && !isUnitTest {
		specifier := profile.Specifier
		info.ProvisioningProfileUUID = &specifier
	}

	args := []any{
		"target", info.TargetName,
		"configuration", info.BuildConfiguration,
		"bundle_id", bundleID,
	}
	switch {
	case isUnitTest:
		t.logger.Info("Not using profile for unit testing target", args...)
	case profile == nil:
		t.logger.Info("Did not find suitable provisioning profile", args...)
	case profile.XcodeManaged:
		t.logger.Info("Using profile", append(args,
			"profile", profile.Name,
			"specifier", profile.Specifier,
			"code_sign_style", provisioningStyleAuto,
			"development_team", profile.DevelopmentTeam())...)
	default:
		t.logger.Info("Using profile", append(args,
			"profile", profile.Name,
			"specifier", profile.Specifier,
			"code_sign_style", provisioningStyleManual,
			"code_sign_identity", profile.CertificateCommonName,
			"development_team", profile.DevelopmentTeam())...)
	}

	t.records = append(t.records, info)
	return info
}

// Records returns every tracked outcome, test targets included
func (t *Tracker) Records() []TargetInfo {
	return append([]TargetInfo(nil), t.records...)
}

// Report returns the tracked outcomes of non test targets
func (t *Tracker) Report() []TargetInfo {
	report := make([]TargetInfo, 0, len(t.records))
	for _, info := range t.records {
		if info.productType.IsTest() {
			continue
		}
		report = append(report, info)
	}
	return report
}

// SortTargetInfos orders infos by project, target and configuration name
func SortTargetInfos(infos []TargetInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		if a.ProjectName != b.ProjectName {
			return a.ProjectName < b.ProjectName
		}
		if a.TargetName != b.TargetName {
			return a.TargetName < b.TargetName
		}
		return a.BuildConfiguration < b.BuildConfiguration
	})
}

// MissingProfiles returns the unmatched infos whose bundle id equals or
// extends the bundle id of a matched info from the same project and
// configuration. Those usually are extensions that lack a profile.
func MissingProfiles(infos []TargetInfo) []TargetInfo {
	var matched, missing []TargetInfo
	for _, info := range infos {
		if info.HasProfile() {
			matched = append(matched, info)
		}
	}
	for _, info := range infos {
		if info.HasProfile() {
			continue
		}
		for _, m := range matched {
			if info.ProjectName != m.ProjectName || info.BuildConfiguration != m.BuildConfiguration {
				continue
			}
			if info.BundleID == m.BundleID || strings.HasPrefix(info.BundleID, m.BundleID+".") {
				missing = append(missing, info)
				break
			}
		}
	}
	return missing
}

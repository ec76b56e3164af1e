package signing

import (
	"strings"

	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

// Action is the signing mutation chosen for a target configuration
type Action int

const (
	// ActionNone leaves the settings untouched
	ActionNone Action = iota
	// ActionSkip disables code signing
	ActionSkip
	// ActionAutomatic switches to Xcode managed signing
	ActionAutomatic
	// ActionManual pins the profile and signing identity
	ActionManual
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionAutomatic:
		return "automatic"
	case ActionManual:
		return "manual"
	default:
		return "none"
	}
}

// TestPolicy decides what happens to test targets without a profile
type TestPolicy string

const (
	// SkipUnmatchedTests disables signing for test targets without a profile
	SkipUnmatchedTests TestPolicy = "skip"
	// KeepUnmatchedTests leaves their settings untouched
	KeepUnmatchedTests TestPolicy = "keep"
)

const (
	codeSignIdentityKey     = "CODE_SIGN_IDENTITY"
	codeSignStyleKey        = "CODE_SIGN_STYLE"
	developmentTeamKey      = "DEVELOPMENT_TEAM"
	provisioningProfileKey  = "PROVISIONING_PROFILE"
	profileSpecifierKey     = "PROVISIONING_PROFILE_SPECIFIER"
	sdkIdentityPrefix       = codeSignIdentityKey + "[sdk="
	sdkSpecifierPrefix      = profileSpecifierKey + "[sdk="
	attrDevelopmentTeam     = "DevelopmentTeam"
	attrDevelopmentTeamName = "DevelopmentTeamName"
	attrProvisioningStyle   = "ProvisioningStyle"
	provisioningStyleAuto   = "Automatic"
	provisioningStyleManual = "Manual"
)

// SelectAction decides how a configuration is mutated once matching is done
func SelectAction(profile *Profile, productType xcodeproj.ProductType, policy TestPolicy) Action {
	switch {
	case profile == nil && productType.IsTest() && policy != KeepUnmatchedTests:
		return ActionSkip
	case profile == nil:
		return ActionNone
	case profile.XcodeManaged:
		return ActionAutomatic
	default:
		return ActionManual
	}
}

// applyAction performs the writes of action on config
func applyAction(action Action, target *xcodeproj.Target, config *xcodeproj.BuildConfiguration, profile *Profile) {
	switch action {
	case ActionSkip:
		skipSigning(config)
	case ActionAutomatic:
		applyAutomatic(target, config, profile)
	case ActionManual:
		applyManual(target, config, profile)
	}
}

func skipSigning(config *xcodeproj.BuildConfiguration) {
	config.SetSetting("EXPANDED_CODE_SIGN_IDENTITY", "")
	config.SetSetting("CODE_SIGNING_REQUIRED", "NO")
	config.SetSetting("CODE_SIGNING_ALLOWED", "NO")
}

// skipTarget disables code signing in every configuration of target
func skipTarget(target *xcodeproj.Target) {
	for _, config := range target.BuildConfigurations() {
		skipSigning(config)
	}
}

func applyAutomatic(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration, profile *Profile) {
	project := target.Project()
	project.SetTargetAttribute(target.ID(), attrDevelopmentTeam, profile.TeamID)
	project.SetTargetAttribute(target.ID(), attrDevelopmentTeamName, profile.TeamName)
	project.SetTargetAttribute(target.ID(), attrProvisioningStyle, provisioningStyleAuto)

	config.DeleteSetting(codeSignStyleKey)
	config.DeleteSetting(provisioningProfileKey)
	config.DeleteSetting(profileSpecifierKey)
	config.SetSetting(developmentTeamKey, profile.TeamID)

	for _, key := range config.SettingKeys() {
		if strings.HasPrefix(key, sdkIdentityPrefix) || strings.HasPrefix(key, sdkSpecifierPrefix) {
			config.DeleteSetting(key)
		}
	}
}

func applyManual(target *xcodeproj.Target, config *xcodeproj.BuildConfiguration, profile *Profile) {
	project := target.Project()
	project.SetTargetAttribute(target.ID(), attrDevelopmentTeam, profile.TeamID)

	config.SetSetting(developmentTeamKey, profile.TeamID)
	config.SetSetting(codeSignStyleKey, provisioningStyleManual)

	// Unit test bundles must not carry a provisioning profile
	if target.ProductType() != xcodeproj.ProductTypeUnitTestBundle {
		project.SetTargetAttribute(target.ID(), attrProvisioningStyle, provisioningStyleManual)
		setWithVariants(config, profileSpecifierKey, sdkSpecifierPrefix, profile.Name)
	}

	setWithVariants(config, codeSignIdentityKey, sdkIdentityPrefix, profile.CertificateCommonName)
}

// setWithVariants sets key and every existing SDK qualified variant of it
func setWithVariants(config *xcodeproj.BuildConfiguration, key, variantPrefix, value string) {
	config.SetSetting(key, value)
	for _, existing := range config.SettingKeys() {
		if strings.HasPrefix(existing, variantPrefix) {
			config.SetSetting(existing, value)
		}
	}
}

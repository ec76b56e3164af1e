// Package exportoptions builds the export options property list that
// accompanies an archive export from the provisioning profiles a signing
// run has assigned to targets.
package exportoptions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/aluedeke/go-xcsign/pkg/codesign"
	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

// Method is the archive export method
type Method string

const (
	MethodAppStore    Method = "app-store"
	MethodAdHoc       Method = "ad-hoc"
	MethodDevelopment Method = "development"
	MethodEnterprise  Method = "enterprise"
)

// SigningStyle is the signing style used when exporting
type SigningStyle string

const (
	SigningStyleAutomatic SigningStyle = "automatic"
	SigningStyleManual    SigningStyle = "manual"
)

// ExportOptions is the content of an export options plist
type ExportOptions struct {
	Method               Method            `plist:"method,omitempty"`
	SigningStyle         SigningStyle      `plist:"signingStyle,omitempty"`
	TeamID               string            `plist:"teamID,omitempty"`
	SigningCertificate   string            `plist:"signingCertificate,omitempty"`
	ProvisioningProfiles map[string]string `plist:"provisioningProfiles,omitempty"`

	// Further export options, such as uploadSymbols
	Custom map[string]interface{} `plist:"-"`
}

// Assignment binds a target bundle identifier to the profile used for it
type Assignment struct {
	BundleID string
	Profile  *codesign.ProvisioningProfile
}

// FromAssignments derives export options from the profiles in use
func FromAssignments(assignments []Assignment) *ExportOptions {
	var profiles []*codesign.ProvisioningProfile
	options := &ExportOptions{}
	for _, a := range assignments {
		if a.Profile == nil {
			continue
		}
		profiles = append(profiles, a.Profile)
		if options.ProvisioningProfiles == nil {
			options.ProvisioningProfiles = make(map[string]string)
		}
		options.ProvisioningProfiles[a.BundleID] = a.Profile.Name
	}

	var teamIDs, commonNames []string
	for _, profile := range profiles {
		teamIDs = append(teamIDs, profile.GetTeamID())
		certs, err := profile.GetCertificates()
		if err != nil {
			continue
		}
		for _, cert := range certs {
			commonNames = append(commonNames, strings.SplitN(cert.Subject.CommonName, ":", 2)[0])
		}
	}

	options.Method = methodFor(profiles)
	options.SigningStyle = signingStyleFor(profiles)
	options.TeamID = codesign.MostCommon(teamIDs)
	options.SigningCertificate = codesign.MostCommon(commonNames)
	return options
}

// methodFor picks enterprise over app-store over development over ad-hoc
func methodFor(profiles []*codesign.ProvisioningProfile) Method {
	var appStore, development bool
	for _, profile := range profiles {
		if profile.ProvisionsAllDevices {
			return MethodEnterprise
		}
		if profile.HasBetaEntitlements() {
			appStore = true
		}
		if hasDevelopmentCertificate(profile) {
			development = true
		}
	}
	switch {
	case appStore:
		return MethodAppStore
	case development:
		return MethodDevelopment
	default:
		return MethodAdHoc
	}
}

func hasDevelopmentCertificate(profile *codesign.ProvisioningProfile) bool {
	certs, err := profile.GetCertificates()
	if err != nil {
		return false
	}
	for _, cert := range certs {
		if codesign.IsDevelopmentCertificate(cert) {
			return true
		}
	}
	return false
}

func signingStyleFor(profiles []*codesign.ProvisioningProfile) SigningStyle {
	for _, profile := range profiles {
		if profile.XcodeManaged() {
			return SigningStyleAutomatic
		}
	}
	return SigningStyleManual
}

// Load reads export options from a JSON or property list file. Keys other
// than the known options are kept in Custom.
func Load(path string) (*ExportOptions, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read export options: %w", err)
	}

	var info map[string]interface{}
	if json.Valid(data) {
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("failed to parse export options: %w", err)
		}
	} else if info, err = xcodeproj.ParsePlist(data); err != nil {
		return nil, fmt.Errorf("failed to parse export options: %w", err)
	}
	return fromDict(info)
}

func fromDict(info map[string]interface{}) (*ExportOptions, error) {
	options := &ExportOptions{}
	for key, value := range info {
		var ok bool
		switch key {
		case "method":
			options.Method, ok = stringValue[Method](value)
		case "signingStyle":
			options.SigningStyle, ok = stringValue[SigningStyle](value)
		case "teamID":
			options.TeamID, ok = stringValue[string](value)
		case "signingCertificate":
			options.SigningCertificate, ok = stringValue[string](value)
		case "provisioningProfiles":
			options.ProvisioningProfiles, ok = stringMap(value)
		default:
			if options.Custom == nil {
				options.Custom = make(map[string]interface{})
			}
			options.Custom[key] = value
			ok = true
		}
		if !ok {
			return nil, fmt.Errorf("invalid value for %s: %v", key, value)
		}
	}
	return options, nil
}

func stringValue[T ~string](value interface{}) (T, bool) {
	s, ok := value.(string)
	return T(s), ok
}

func stringMap(value interface{}) (map[string]string, bool) {
	dict, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	m := make(map[string]string, len(dict))
	for k, v := range dict {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		m[k] = s
	}
	return m, true
}

// Update overrides the options with every value set in other. Custom keys
// are merged.
func (o *ExportOptions) Update(other *ExportOptions) {
	if other.Method != "" {
		o.Method = other.Method
	}
	if other.SigningStyle != "" {
		o.SigningStyle = other.SigningStyle
	}
	if other.TeamID != "" {
		o.TeamID = other.TeamID
	}
	if other.SigningCertificate != "" {
		o.SigningCertificate = other.SigningCertificate
	}
	if other.ProvisioningProfiles != nil {
		o.ProvisioningProfiles = other.ProvisioningProfiles
	}
	for key, value := range other.Custom {
		if o.Custom == nil {
			o.Custom = make(map[string]interface{})
		}
		o.Custom[key] = value
	}
}

// Dict returns the property list dictionary of the options. Empty options
// are left out.
func (o *ExportOptions) Dict() map[string]interface{} {
	dict := make(map[string]interface{}, len(o.Custom)+5)
	for key, value := range o.Custom {
		dict[key] = value
	}
	set := func(key, value string) {
		if value != "" {
			dict[key] = value
		}
	}
	set("method", string(o.Method))
	set("signingStyle", string(o.SigningStyle))
	set("teamID", o.TeamID)
	set("signingCertificate", o.SigningCertificate)
	if len(o.ProvisioningProfiles) > 0 {
		dict["provisioningProfiles"] = o.ProvisioningProfiles
	}
	return dict
}

// Save writes the export options as an XML property list
func (o *ExportOptions) Save(path string) error {
	if err := xcodeproj.WritePlist(path, o.Dict()); err != nil {
		return fmt.Errorf("failed to save export options: %w", err)
	}
	return nil
}

var capitalPattern = regexp.MustCompile(`([A-Z])`)

// label turns an option key into a display name, "teamID" into "Team Id"
func label(key string) string {
	spaced := capitalPattern.ReplaceAllString(strings.ReplaceAll(key, "ID", "Id"), " $1")
	words := strings.Fields(spaced)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// Lines renders the options for display in key order, one "Key: value" line
// per option and one indented line per dictionary entry
func (o *ExportOptions) Lines() []string {
	dict := o.Dict()
	keys := sortedKeys(dict)

	var lines []string
	for _, key := range keys {
		nested, ok := dictValue(dict[key])
		if !ok {
			lines = append(lines, fmt.Sprintf("%s: %v", label(key), dict[key]))
			continue
		}
		lines = append(lines, label(key)+":")
		for _, k := range sortedKeys(nested) {
			lines = append(lines, fmt.Sprintf("    - %s: %v", k, nested[k]))
		}
	}
	return lines
}

func dictValue(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for k, s := range v {
			m[k] = s
		}
		return m, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

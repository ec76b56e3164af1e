package codesign

import (
	"crypto/x509"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// ProvisioningProfile represents a parsed .mobileprovision file
type ProvisioningProfile struct {
	Name                        string                 `plist:"Name"`
	TeamName                    string                 `plist:"TeamName"`
	TeamIdentifier              []string               `plist:"TeamIdentifier"`
	AppIDName                   string                 `plist:"AppIDName"`
	ApplicationIdentifierPrefix []string               `plist:"ApplicationIdentifierPrefix"`
	Entitlements                map[string]interface{} `plist:"Entitlements"`
	DeveloperCertificates       [][]byte               `plist:"DeveloperCertificates"`
	ProvisionedDevices          []string               `plist:"ProvisionedDevices"`
	ProvisionsAllDevices        bool                   `plist:"ProvisionsAllDevices"`
	CreationDate                time.Time              `plist:"CreationDate"`
	ExpirationDate              time.Time              `plist:"ExpirationDate"`
	UUID                        string                 `plist:"UUID"`
	Platform                    []string               `plist:"Platform"`

	// Set only when the IsXcodeManaged key is present
	isXcodeManaged *bool
}

var (
	xcodeManagedNamePattern  = regexp.MustCompile(`^iOS Team ((Ad Hoc|Store) )?Provisioning Profile:`)
	developmentCertCNPattern = regexp.MustCompile(`^((Apple Development)|(iPhone Developer)):`)
)

// ParseProvisioningProfile parses a .mobileprovision file
// The file is a CMS (PKCS#7) signed container with a plist payload
func ParseProvisioningProfile(data []byte) (*ProvisioningProfile, error) {
	// Parse the CMS/PKCS#7 container
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#7 container: %w", err)
	}

	return ParseProvisioningProfileContent(p7.Content)
}

// ParseProvisioningProfileContent parses the plist payload of a provisioning profile
func ParseProvisioningProfileContent(content []byte) (*ProvisioningProfile, error) {
	var profile ProvisioningProfile
	if _, err := plist.Unmarshal(content, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning profile plist: %w", err)
	}

	var raw map[string]interface{}
	if _, err := plist.Unmarshal(content, &raw); err == nil {
		if managed, ok := raw["IsXcodeManaged"].(bool); ok {
			profile.isXcodeManaged = &managed
		}
	}

	return &profile, nil
}

// LoadProvisioningProfile reads and parses the .mobileprovision file at path
func LoadProvisioningProfile(path string) (*ProvisioningProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning profile: %w", err)
	}
	profile, err := ParseProvisioningProfile(data)
	if err != nil {
		return nil, fmt.Errorf("invalid provisioning profile %s: %w", path, err)
	}
	return profile, nil
}

// GetTeamID returns the team identifier from the profile
func (p *ProvisioningProfile) GetTeamID() string {
	if len(p.TeamIdentifier) > 0 {
		return p.TeamIdentifier[0]
	}
	if len(p.ApplicationIdentifierPrefix) > 0 {
		return p.ApplicationIdentifierPrefix[0]
	}
	return ""
}

// GetApplicationIdentifier returns the application identifier from entitlements.
// Both the iOS and the macOS key are accepted.
func (p *ProvisioningProfile) GetApplicationIdentifier() string {
	if appID, ok := p.Entitlements["application-identifier"].(string); ok {
		return appID
	}
	keys := make([]string, 0, len(p.Entitlements))
	for key := range p.Entitlements {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.Contains(key, "application-identifier") || strings.Contains(key, "associated-application-identifier") {
			continue
		}
		if appID, ok := p.Entitlements[key].(string); ok {
			return appID
		}
	}
	return ""
}

// BundleID returns the application identifier without the team prefix.
// Wildcard profiles keep the trailing asterisk.
func (p *ProvisioningProfile) BundleID() string {
	_, bundleID, _ := strings.Cut(p.GetApplicationIdentifier(), ".")
	return bundleID
}

// IsWildcard reports whether the profile matches a family of bundle identifiers
func (p *ProvisioningProfile) IsWildcard() bool {
	return strings.HasSuffix(p.GetApplicationIdentifier(), "*")
}

// XcodeManaged reports whether Xcode generated the profile. Profiles without
// the IsXcodeManaged key are recognised by name.
func (p *ProvisioningProfile) XcodeManaged() bool {
	if p.isXcodeManaged != nil {
		return *p.isXcodeManaged
	}
	return xcodeManagedNamePattern.MatchString(p.Name)
}

// HasBetaEntitlements reports whether the profile allows TestFlight uploads
func (p *ProvisioningProfile) HasBetaEntitlements() bool {
	for key, value := range p.Entitlements {
		if !strings.Contains(key, "beta-reports-active") {
			continue
		}
		active, _ := value.(bool)
		return active
	}
	return false
}

// IsExpired checks if the provisioning profile has expired
func (p *ProvisioningProfile) IsExpired() bool {
	return time.Now().After(p.ExpirationDate)
}

// GetCertificates parses and returns the developer certificates from the profile
func (p *ProvisioningProfile) GetCertificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for i, certData := range p.DeveloperCertificates {
		cert, err := x509.ParseCertificate(certData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// CertificateCommonName returns the most common subject common name among the
// profile certificates that are also in available. When available is empty
// all profile certificates are considered. Ties go to the first certificate.
func (p *ProvisioningProfile) CertificateCommonName(available []*x509.Certificate) string {
	certs, err := p.GetCertificates()
	if err != nil {
		return ""
	}

	if len(available) > 0 {
		serials := make(map[string]bool, len(available))
		for _, cert := range available {
			serials[cert.SerialNumber.String()] = true
		}
		var usable []*x509.Certificate
		for _, cert := range certs {
			if serials[cert.SerialNumber.String()] {
				usable = append(usable, cert)
			}
		}
		certs = usable
	}

	var names []string
	for _, cert := range certs {
		names = append(names, cert.Subject.CommonName)
	}
	return MostCommon(names)
}

// IsDevelopmentCertificate reports whether the certificate is an Apple
// development signing certificate
func IsDevelopmentCertificate(cert *x509.Certificate) bool {
	return developmentCertCNPattern.MatchString(cert.Subject.CommonName)
}

// MostCommon returns the most frequent non-empty value. Ties go to the value
// seen first.
func MostCommon(values []string) string {
	counts := make(map[string]int)
	var order []string
	for _, value := range values {
		if value == "" {
			continue
		}
		if counts[value] == 0 {
			order = append(order, value)
		}
		counts[value]++
	}

	best, bestCount := "", 0
	for _, value := range order {
		if counts[value] > bestCount {
			best, bestCount = value, counts[value]
		}
	}
	return best
}

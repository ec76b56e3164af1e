package signing

import (
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/aluedeke/go-xcsign/pkg/codesign"
)

// Profile is a provisioning profile candidate. BundleID is a shell glob.
type Profile struct {
	Name                  string `json:"name" yaml:"name"`
	TeamID                string `json:"team_id" yaml:"team_id"`
	TeamName              string `json:"team_name" yaml:"team_name"`
	BundleID              string `json:"bundle_id" yaml:"bundle_id"`
	Specifier             string `json:"specifier" yaml:"specifier"`
	CertificateCommonName string `json:"certificate_common_name" yaml:"certificate_common_name"`
	XcodeManaged          bool   `json:"xcode_managed" yaml:"xcode_managed"`
}

// DevelopmentTeam returns the team for display, "Name (ID)" when the team
// name is known
func (p *Profile) DevelopmentTeam() string {
	if p.TeamName == "" {
		return p.TeamID
	}
	return fmt.Sprintf("%s (%s)", p.TeamName, p.TeamID)
}

// ProfileFromProvisioningProfile converts a parsed .mobileprovision file. The
// certificate common name is chosen among the profile certificates present
// in certs, or among all of them when certs is empty.
func ProfileFromProvisioningProfile(pp *codesign.ProvisioningProfile, certs []*x509.Certificate) Profile {
	return Profile{
		Name:                  pp.Name,
		TeamID:                pp.GetTeamID(),
		TeamName:              pp.TeamName,
		BundleID:              pp.BundleID(),
		Specifier:             pp.UUID,
		CertificateCommonName: pp.CertificateCommonName(certs),
		XcodeManaged:          pp.XcodeManaged(),
	}
}

// ParseProfiles decodes a JSON array of profile records
func ParseProfiles(data []byte) ([]Profile, error) {
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return profiles, nil
}

package codesign

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// newTestCertificate creates a self-signed certificate with the given common name
func newTestCertificate(t *testing.T, commonName string, serial int64) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:         commonName,
			OrganizationalUnit: []string{"ABCDE12345"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

// newTestProfile wraps the profile plist in a signed CMS container
func newTestProfile(t *testing.T, content map[string]interface{}) []byte {
	t.Helper()

	payload, err := plist.Marshal(content, plist.XMLFormat)
	require.NoError(t, err)

	cert, key := newTestCertificate(t, "Test Signer", 99)
	signed, err := pkcs7.NewSignedData(payload)
	require.NoError(t, err)
	require.NoError(t, signed.AddSigner(cert, key, pkcs7.SignerInfoConfig{}))
	data, err := signed.Finish()
	require.NoError(t, err)
	return data
}

// TestParseProvisioningProfile decodes a signed profile and its derived fields
func TestParseProvisioningProfile(t *testing.T) {
	devCert, _ := newTestCertificate(t, "Apple Development: Jane Doe (ABCDE12345)", 1)

	data := newTestProfile(t, map[string]interface{}{
		"Name":           "App Development",
		"UUID":           "uuid-1",
		"TeamName":       "Example Team",
		"TeamIdentifier": []string{"ABCDE12345"},
		"Entitlements": map[string]interface{}{
			"application-identifier": "ABCDE12345.com.example.app",
			"beta-reports-active":    true,
		},
		"DeveloperCertificates": [][]byte{devCert.Raw},
		"ExpirationDate":        time.Now().Add(24 * time.Hour),
	})

	path := filepath.Join(t.TempDir(), "app.mobileprovision")
	require.NoError(t, os.WriteFile(path, data, 0644))

	profile, err := LoadProvisioningProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "App Development", profile.Name)
	assert.Equal(t, "uuid-1", profile.UUID)
	assert.Equal(t, "ABCDE12345", profile.GetTeamID())
	assert.Equal(t, "Example Team", profile.TeamName)
	assert.Equal(t, "com.example.app", profile.BundleID())
	assert.False(t, profile.IsWildcard())
	assert.True(t, profile.HasBetaEntitlements())
	assert.False(t, profile.IsExpired())
	assert.False(t, profile.XcodeManaged())

	certs, err := profile.GetCertificates()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.True(t, IsDevelopmentCertificate(certs[0]))
	assert.True(t, certs[0].Equal(devCert))
}

// TestParseProvisioningProfileInvalid rejects data that is not a CMS container
func TestParseProvisioningProfileInvalid(t *testing.T) {
	_, err := ParseProvisioningProfile([]byte("not a profile"))
	assert.Error(t, err)

	_, err = LoadProvisioningProfile(filepath.Join(t.TempDir(), "missing.mobileprovision"))
	assert.Error(t, err)
}

// TestXcodeManaged prefers the explicit flag over the name heuristic
func TestXcodeManaged(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"named team profile", profilePlist("iOS Team Provisioning Profile: com.example.app", ""), true},
		{"named ad hoc profile", profilePlist("iOS Team Ad Hoc Provisioning Profile: *", ""), true},
		{"regular name", profilePlist("App Store", ""), false},
		{"explicit false", profilePlist("iOS Team Provisioning Profile: *", "<key>IsXcodeManaged</key><false/>"), false},
		{"explicit true", profilePlist("Custom", "<key>IsXcodeManaged</key><true/>"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := ParseProvisioningProfileContent([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, profile.XcodeManaged())
		})
	}
}

func profilePlist(name, extra string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0"><dict>
<key>Name</key><string>` + name + `</string>
` + extra + `
</dict></plist>`
}

// TestBundleID strips the team prefix and keeps wildcards
func TestBundleID(t *testing.T) {
	profile := &ProvisioningProfile{Entitlements: map[string]interface{}{
		"com.apple.application-identifier": "TEAM.com.example.*",
	}}
	assert.Equal(t, "com.example.*", profile.BundleID())
	assert.True(t, profile.IsWildcard())

	empty := &ProvisioningProfile{}
	assert.Equal(t, "", empty.BundleID())
}

// TestCertificateCommonName picks the most common name among usable certificates
func TestCertificateCommonName(t *testing.T) {
	dev1, _ := newTestCertificate(t, "Apple Development: Jane", 1)
	dev2, _ := newTestCertificate(t, "Apple Development: Jane", 2)
	dist, _ := newTestCertificate(t, "Apple Distribution: Example", 3)

	profile := &ProvisioningProfile{
		DeveloperCertificates: [][]byte{dist.Raw, dev1.Raw, dev2.Raw},
	}

	assert.Equal(t, "Apple Development: Jane", profile.CertificateCommonName(nil))
	assert.Equal(t, "Apple Distribution: Example", profile.CertificateCommonName([]*x509.Certificate{dist}))

	other, _ := newTestCertificate(t, "Other", 4)
	assert.Equal(t, "", profile.CertificateCommonName([]*x509.Certificate{other}))
}

// TestMostCommon breaks ties by first appearance
func TestMostCommon(t *testing.T) {
	assert.Equal(t, "a", MostCommon([]string{"a", "b", "b", "a"}))
	assert.Equal(t, "b", MostCommon([]string{"a", "b", "b"}))
	assert.Equal(t, "", MostCommon(nil))
	assert.Equal(t, "x", MostCommon([]string{"", "x"}))
}

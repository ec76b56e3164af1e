// Package codesign reads the Apple code signing artifacts a project setup
// depends on: provisioning profiles and signing certificates.
//
// # Basic Usage
//
// To turn a profile into the fields used for build settings:
//
//	profile, err := codesign.LoadProvisioningProfile(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	certs, err := codesign.LoadCertificateFiles(p12Paths, password)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	name := profile.CertificateCommonName(certs)
//
// # Formats
//
//   - Provisioning profiles: CMS (PKCS#7) signed property lists
//   - Certificates: PKCS#12 archives or PEM encoded certificates
package codesign

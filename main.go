package main

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docopt/docopt-go"
	"github.com/gookit/color"

	"github.com/aluedeke/go-xcsign/internal/config"
	"github.com/aluedeke/go-xcsign/pkg/codesign"
	"github.com/aluedeke/go-xcsign/pkg/exportoptions"
	"github.com/aluedeke/go-xcsign/pkg/signing"
	"github.com/aluedeke/go-xcsign/pkg/xcodeproj"
)

const version = "1.0.0"

const usage = `go-xcsign - Xcode Code Signing Settings Tool

Sets up code signing settings of Xcode projects so that every target uses a
matching provisioning profile.

Usage:
  go-xcsign use-profiles [<project>...] [--profile=<path>...] [--profiles-json=<path>] [--p12=<path>...] [--password=<password>] [--config=<path>] [--result=<path>] [--export-options=<path>] [--custom-export-options=<path>] [--unmatched-tests=<policy>] [--log-level=<level>] [--log-format=<format>] [--verbose]
  go-xcsign bundle-ids <project> [--target=<name>] [--configuration=<name>] [--verbose]
  go-xcsign info --profile=<path> [--p12=<path>...] [--password=<password>]
  go-xcsign -h | --help
  go-xcsign --version

Commands:
  use-profiles  Apply provisioning profiles to the projects (defaults to **/*.xcodeproj)
  bundle-ids    List the resolved bundle identifiers of a project
  info          Display information about a provisioning profile

Options:
  --profile=<path>            Path or glob pattern of provisioning profiles (or CODESIGN_PROFILE env var)
  --profiles-json=<path>      Path to a JSON array of profile records
  --p12=<path>                Path to a P12 or PEM certificate file (or CODESIGN_P12 env var)
  --password=<password>       Password for the P12 files (or CODESIGN_PASSWORD env var)
  --config=<path>             Path to a YAML configuration file
  --result=<path>             Where to write the JSON result [default: use-profiles-result.json]
  --export-options=<path>     Where to write the export options plist [default: export_options.plist]
  --custom-export-options=<path>
                              JSON or plist file merged over the generated export options
  --unmatched-tests=<policy>  skip or keep test targets without a profile [default: skip]
  --target=<name>             Only list bundle identifiers of this target
  --configuration=<name>      Only list bundle identifiers of this build configuration
  --log-level=<level>         debug, info, warn or error [default: info]
  --log-format=<format>       text or json [default: text]
  --verbose                   Shorthand for --log-level=debug
  -h --help                   Show this help message
  --version                   Show version

Without --profile, --profiles-json or a configuration, the profiles installed
in ~/Library/MobileDevice/Provisioning Profiles are used.

Environment Variables:
  CODESIGN_PROFILE           Provisioning profile paths, separated by the path list separator
  CODESIGN_P12               Certificate file paths, separated by the path list separator
  CODESIGN_PASSWORD          P12 certificate password (overridden by --password)

Examples:
  # Apply profiles to every project below the working directory
  go-xcsign use-profiles --profile=app.mobileprovision --p12=dist.p12 --password=secret

  # Apply every profile in a directory and add export options of your own
  go-xcsign use-profiles --profile='profiles/*.mobileprovision' --custom-export-options=extra.json

  # Apply profile records to one project
  go-xcsign use-profiles ios/App.xcodeproj --profiles-json=profiles.json

  # Run from a configuration file
  go-xcsign use-profiles --config=xcsign.yaml

  # List bundle identifiers of the Release configuration
  go-xcsign bundle-ids ios/App.xcodeproj --configuration=Release

  # View provisioning profile information
  go-xcsign info --profile=app.mobileprovision
`

const defaultProjectPattern = "**/*.xcodeproj"

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	if useProfiles, _ := opts.Bool("use-profiles"); useProfiles {
		if err := runUseProfiles(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else if bundleIDs, _ := opts.Bool("bundle-ids"); bundleIDs {
		if err := runBundleIDs(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else if info, _ := opts.Bool("info"); info {
		if err := runInfo(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// newLogger creates a logger writing to outW. Unknown formats fall back to
// text.
func newLogger(level slog.Level, formatStr string, outW io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}

// loadConfig merges the configuration file, the environment and the flags
func loadConfig(opts docopt.Opts) (config.Config, error) {
	var cfg config.Config
	if path, _ := opts.String("--config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if profiles := optStrings(opts, "--profile"); len(profiles) > 0 {
		cfg.Profiles = profiles
	}
	if certificates := optStrings(opts, "--p12"); len(certificates) > 0 {
		cfg.Certificates = certificates
	}
	if password, _ := opts.String("--password"); password != "" {
		cfg.Password = password
	}
	if path, _ := opts.String("--custom-export-options"); path != "" {
		cfg.CustomExportOptions = path
	}

	// Flags with defaults only win over the file when given explicitly
	overrides := []struct {
		flag   string
		target *string
	}{
		{"--result", &cfg.Result},
		{"--export-options", &cfg.ExportOptions},
		{"--unmatched-tests", &cfg.UnmatchedTests},
		{"--log-level", &cfg.LogLevel},
		{"--log-format", &cfg.LogFormat},
	}
	for _, o := range overrides {
		value, _ := opts.String(o.flag)
		if value != "" && (*o.target == "" || flagGiven(o.flag)) {
			*o.target = value
		}
	}
	if verbose, _ := opts.Bool("--verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

func runUseProfiles(opts docopt.Opts) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if path, _ := opts.String("--profiles-json"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read profile records: %w", err)
		}
		records, err := signing.ParseProfiles(data)
		if err != nil {
			return err
		}
		cfg.ProfileRecords = append(cfg.ProfileRecords, records...)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, _ := cfg.TestPolicy()
	level, _ := cfg.Level()
	logger := newLogger(level, cfg.LogFormat, os.Stderr)

	var custom *exportoptions.ExportOptions
	if cfg.CustomExportOptions != "" {
		if custom, err = exportoptions.Load(cfg.CustomExportOptions); err != nil {
			return err
		}
	}

	certs, err := codesign.LoadCertificateFiles(cfg.Certificates, cfg.Password)
	if err != nil {
		return err
	}

	profiles, provisioning, err := loadProfiles(cfg, certs)
	if err != nil {
		return err
	}
	for _, profile := range profiles {
		color.Blue.Printf("Using profile %q [%s] for bundle id %q\n", profile.Name, profile.Specifier, profile.BundleID)
	}

	projects, err := findProjects(projectPatterns(opts))
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		return fmt.Errorf("no Xcode projects found")
	}

	manager := signing.NewManager(profiles, signing.WithLogger(logger), signing.WithTestPolicy(policy))
	var infos []signing.TargetInfo
	for _, path := range projects {
		project, err := xcodeproj.Open(path)
		if err != nil {
			return err
		}
		fmt.Printf("Configure code signing settings in %s\n", path)
		projectInfos, err := manager.ApplyAndSave(project)
		if err != nil {
			return err
		}
		infos = append(infos, projectInfos...)
	}
	signing.SortTargetInfos(infos)

	if err := writeResult(cfg.Result, infos); err != nil {
		return err
	}
	notifyProfileUsage(infos)

	options := exportoptions.FromAssignments(exportAssignments(infos, provisioning))
	if custom != nil {
		options.Update(custom)
	}
	if err := options.Save(cfg.ExportOptions); err != nil {
		return err
	}
	color.Green.Printf("Generated export options at %s\n", cfg.ExportOptions)
	for _, line := range options.Lines() {
		color.Blue.Printf(" - %s\n", line)
	}
	return nil
}

// loadProfiles parses the provisioning profile files followed by the
// configured profile records. Parsed files are also returned by specifier.
func loadProfiles(cfg config.Config, certs []*x509.Certificate) ([]signing.Profile, map[string]*codesign.ProvisioningProfile, error) {
	paths, err := cfg.ProfilePaths()
	if err != nil {
		return nil, nil, err
	}

	var profiles []signing.Profile
	provisioning := make(map[string]*codesign.ProvisioningProfile)
	for _, path := range paths {
		pp, err := codesign.LoadProvisioningProfile(path)
		if err != nil {
			return nil, nil, err
		}
		provisioning[pp.UUID] = pp
		profiles = append(profiles, signing.ProfileFromProvisioningProfile(pp, certs))
	}
	profiles = append(profiles, cfg.ProfileRecords...)
	if len(profiles) == 0 {
		return nil, nil, fmt.Errorf("no provisioning profiles found for %v", cfg.Profiles)
	}
	return profiles, provisioning, nil
}

func projectPatterns(opts docopt.Opts) []string {
	patterns := optStrings(opts, "<project>")
	if len(patterns) == 0 {
		return []string{defaultProjectPattern}
	}
	return patterns
}

// findProjects expands the patterns to project directories, skipping
// projects nested in workspaces and packages
func findProjects(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var projects []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid project pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] || !isProjectDir(match) {
				continue
			}
			if ignored, _ := doublestar.PathMatch("**/*.xcodeproj/**/*.xcodeproj", filepath.ToSlash(match)); ignored {
				continue
			}
			seen[match] = true
			projects = append(projects, match)
		}
	}
	sort.Strings(projects)
	return projects, nil
}

func isProjectDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, "project.pbxproj"))
	return err == nil && !info.IsDir()
}

func writeResult(path string, infos []signing.TargetInfo) error {
	if infos == nil {
		infos = []signing.TargetInfo{}
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func notifyProfileUsage(infos []signing.TargetInfo) {
	matched := false
	for _, info := range infos {
		if !info.HasProfile() {
			continue
		}
		matched = true
		color.Green.Printf(" - %s (%s) in %s uses profile %s for bundle id %s\n",
			info.TargetName, info.BuildConfiguration, info.ProjectName, *info.ProvisioningProfileUUID, info.BundleID)
	}
	if !matched {
		color.Yellow.Println("Did not find matching provisioning profiles for code signing!")
		return
	}

	for _, info := range signing.MissingProfiles(infos) {
		color.Yellow.Printf("Warning: no matching profile for target %s (%s) in %s with bundle id %s\n",
			info.TargetName, info.BuildConfiguration, info.ProjectName, info.BundleID)
	}
}

// exportAssignments pairs matched bundle ids with the parsed profile files
// they use. Inline profile records carry no certificates and are left out.
func exportAssignments(infos []signing.TargetInfo, provisioning map[string]*codesign.ProvisioningProfile) []exportoptions.Assignment {
	var assignments []exportoptions.Assignment
	for _, info := range infos {
		if !info.HasProfile() {
			continue
		}
		pp, ok := provisioning[*info.ProvisioningProfileUUID]
		if !ok {
			continue
		}
		assignments = append(assignments, exportoptions.Assignment{BundleID: info.BundleID, Profile: pp})
	}
	return assignments
}

func runBundleIDs(opts docopt.Opts) error {
	var projectPath string
	if projects := optStrings(opts, "<project>"); len(projects) > 0 {
		projectPath = projects[0]
	}
	targetName, _ := opts.String("--target")
	configName, _ := opts.String("--configuration")

	level := slog.LevelWarn
	if verbose, _ := opts.Bool("--verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level, "text", os.Stderr)

	project, err := xcodeproj.Open(projectPath)
	if err != nil {
		return err
	}

	manager := signing.NewManager(nil, signing.WithLogger(logger))
	for _, target := range project.Targets() {
		if targetName != "" && target.Name() != targetName {
			continue
		}
		for _, cfg := range target.BuildConfigurations() {
			if configName != "" && cfg.Name() != configName {
				continue
			}
			bundleID, source, err := manager.BundleID(target, cfg)
			if err != nil {
				color.Yellow.Printf("%s (%s): no bundle id\n", target.Name(), cfg.Name())
				continue
			}
			fmt.Printf("%s (%s): %s [%s]\n", target.Name(), cfg.Name(), bundleID, source)
		}
	}
	return nil
}

func runInfo(opts docopt.Opts) error {
	var profilePath string
	if profiles := optStrings(opts, "--profile"); len(profiles) > 0 {
		profilePath = profiles[0]
	}
	password, _ := opts.String("--password")
	if password == "" {
		password = os.Getenv("CODESIGN_PASSWORD")
	}

	certs, err := codesign.LoadCertificateFiles(optStrings(opts, "--p12"), password)
	if err != nil {
		return err
	}
	return showProfileInfo(profilePath, certs)
}

func showProfileInfo(profilePath string, certs []*x509.Certificate) error {
	profile, err := codesign.LoadProvisioningProfile(profilePath)
	if err != nil {
		return err
	}
	record := signing.ProfileFromProvisioningProfile(profile, certs)

	fmt.Println("Provisioning Profile Information")
	fmt.Println("================================")
	fmt.Printf("File:           %s\n", profilePath)
	fmt.Printf("Name:           %s\n", profile.Name)
	fmt.Printf("Team:           %s\n", record.DevelopmentTeam())
	fmt.Printf("App ID:         %s\n", profile.GetApplicationIdentifier())
	fmt.Printf("Bundle ID:      %s\n", record.BundleID)
	fmt.Printf("Wildcard:       %v\n", profile.IsWildcard())
	fmt.Printf("UUID:           %s\n", profile.UUID)
	fmt.Printf("Xcode Managed:  %v\n", record.XcodeManaged)
	fmt.Printf("Certificate:    %s\n", record.CertificateCommonName)
	fmt.Printf("Created:        %s\n", profile.CreationDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expiration:     %s\n", profile.ExpirationDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expired:        %v\n", profile.IsExpired())
	if profileCerts, err := profile.GetCertificates(); err == nil {
		fmt.Printf("Certificates:   %d\n", len(profileCerts))
		for i, cert := range profileCerts {
			fmt.Printf("  [%d] %s\n", i+1, cert.Subject.CommonName)
			fmt.Printf("      Serial: %s\n", cert.SerialNumber.String())
			fmt.Printf("      Expires: %s\n", cert.NotAfter.Format("2006-01-02"))
		}
	}

	if len(profile.ProvisionedDevices) > 0 {
		fmt.Printf("Devices:        %d\n", len(profile.ProvisionedDevices))
	}

	// The record as accepted by --profiles-json
	data, err := json.MarshalIndent([]signing.Profile{record}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile record: %w", err)
	}
	fmt.Println()
	fmt.Println(string(data))
	return nil
}

// optStrings returns the values of a repeatable option or argument
func optStrings(opts docopt.Opts, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// flagGiven reports whether the flag appears on the command line
func flagGiven(flag string) bool {
	for _, arg := range os.Args[1:] {
		if arg == flag || len(arg) > len(flag) && arg[:len(flag)+1] == flag+"=" {
			return true
		}
	}
	return false
}

// Package xcodeproj reads and writes Xcode project files.
//
// A project is loaded from the project.pbxproj property list inside an
// .xcodeproj directory and exposed as an object graph of targets, build
// configurations, dependencies and container item proxies. Build settings
// are mutated in place and written back with Save.
//
// # Basic Usage
//
//	project, err := xcodeproj.Open("App.xcodeproj")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, target := range project.Targets() {
//	    for _, config := range target.BuildConfigurations() {
//	        config.SetSetting("DEVELOPMENT_TEAM", "ABCD1234")
//	    }
//	}
//	err = project.Save()
//
// Projects can also be assembled in memory with New, AddTarget,
// AddBuildConfiguration and AddDependency.
package xcodeproj

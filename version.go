// Package chexprompt provides version information and metadata for the report
// evaluator module.
//
// The version follows semantic versioning (semver) and is updated with each
// release.
package chexprompt

// Version represents the current semantic version of the module.
const Version = "0.2.0"

// VersionInfo encapsulates version metadata for the module.
type VersionInfo struct {
	// Version contains the semantic version string following semver format
	Version string

	// Name contains the canonical module name for identification purposes
	Name string
}

// GetVersion returns structured version information.
//
// Usage:
//
//	info := GetVersion()
//	slog.Info("starting", "name", info.Name, "version", info.Version)
func GetVersion() VersionInfo {
	return VersionInfo{
		Version: Version,
		Name:    "chexprompt",
	}
}

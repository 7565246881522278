package manifest

import (
	"fmt"
	"strings"
)

// MissingVersionError reports a version that has no entry where the merge
// needs one.
type MissingVersionError struct {
	Version  string
	Section  string // "patches" or "sources"
	Document string // "original" or "custom"
	// Referrer is the version whose base chain led to Version, if any.
	Referrer string
}

func (e *MissingVersionError) Error() string {
	msg := fmt.Sprintf("version %q has no %s entry in the %s manifest", e.Version, e.Section, e.Document)
	if e.Referrer != "" {
		msg += fmt.Sprintf(" (base of %q)", e.Referrer)
	}
	return msg
}

// CycleError reports a base_version chain that leads back to itself.
// Chain starts and ends with the repeated version.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "base_version cycle: " + strings.Join(e.Chain, " -> ")
}

// MalformedManifestError reports a document that does not have the expected
// mapping shape.
type MalformedManifestError struct {
	Path string
	Err  error
}

func (e *MalformedManifestError) Error() string {
	return fmt.Sprintf("malformed manifest %s: %v", e.Path, e.Err)
}

func (e *MalformedManifestError) Unwrap() error { return e.Err }

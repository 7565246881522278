package qtforge

import (
	"errors"

	"github.com/gookit/color"
)

var (
	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time

	errNoArchives = errors.New("no recipe archives given")
)

// Well-known names inside the build and custom directories.
const (
	conandataFile         = "conandata.yml"
	customVersionsFile    = "custom-versions.yml"
	customPatchesDir      = "patches"
	conanfilePatchesDir   = "conanfile-patches"
	checksumsFile         = "checksums"
	conanExportArchive    = "conan_export.tgz"
	conanCreateJSONOutput = "info.json"
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

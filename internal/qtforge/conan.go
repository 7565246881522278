package qtforge

import (
	"fmt"
	"os/exec"
	"path/filepath"
)

// buildOption is one `-o <pkg>:<name>=<value>` passed to conan create.
type buildOption struct {
	Name  string
	Value string
}

var commonCreateOptions = []buildOption{
	{"shared", "True"},
	{"qtmultimedia", "True"},
	{"qtsvg", "True"},
	{"qttools", "True"},
	{"qttranslations", "True"},
}

var windowsCreateOptions = []buildOption{
	{"with_glib", "False"},
	{"with_harfbuzz", "False"},
	{"opengl", "dynamic"},
	{"qtwinextras", "True"},
}

var otherCreateOptions = []buildOption{
	{"qtmacextras", "True"},
}

// createOptions returns the fixed option set for the target platform.
func createOptions(goos string) []buildOption {
	opts := append([]buildOption(nil), commonCreateOptions...)
	if goos == "windows" {
		return append(opts, windowsCreateOptions...)
	}
	return append(opts, otherCreateOptions...)
}

// Conan drives the conan 1.x CLI for one package.
type Conan struct {
	Runner  Runner
	Package string
	Channel string // user/channel, e.g. vkcalls/stable
	Home    string // directory containing .conan
}

func newConan(r Runner, s *Settings) *Conan {
	return &Conan{Runner: r, Package: s.Package, Channel: s.Channel, Home: s.ConanHome}
}

// reference returns "<pkg>/<version>@" or "<pkg>/<version>@<user/channel>".
func (c *Conan) reference(version, channel string) string {
	return fmt.Sprintf("%s/%s@%s", c.Package, version, channel)
}

func (c *Conan) run(dir string, args ...string) error {
	cmd := exec.Command("conan", args...)
	cmd.Dir = dir
	if err := c.Runner.Run(cmd); err != nil {
		return fmt.Errorf("conan %s: %w", args[0], err)
	}
	return nil
}

// Download fetches the recipe of version from remote into the local cache.
func (c *Conan) Download(version, remote string) error {
	stepf("Download conan recipe version = %s, remote = %s", version, remote)
	return c.run("", "download", "--recipe", c.reference(version, ""), "--remote="+remote)
}

// Copy copies the cached recipe of version to the configured user/channel.
func (c *Conan) Copy(version string) error {
	stepf("Copy conan recipe version = %s to channel = %s", version, c.Channel)
	return c.run("", "copy", c.reference(version, ""), c.Channel, "--force")
}

// ExportDir is where conan keeps the exported recipe files of version.
func (c *Conan) ExportDir(version string) string {
	return filepath.Join(c.Home, ".conan", "data", c.Package, version, "_", "_", "export")
}

// Create builds version from the recipe in buildDir. The build runs inside
// buildDir so info.json lands next to the recipe.
func (c *Conan) Create(buildDir, version, profile, goos string) error {
	stepf("Call conan create with buildDir = %s version = %s profile = %s", buildDir, version, profile)
	args := []string{
		"create", buildDir, c.reference(version, c.Channel),
		"--profile=" + profile,
		"--json", conanCreateJSONOutput,
	}
	for _, o := range createOptions(goos) {
		args = append(args, "-o", fmt.Sprintf("%s:%s=%s", c.Package, o.Name, o.Value))
	}
	return c.run(buildDir, args...)
}

// modulesConfig names the per-version module list shipped with the Qt recipe.
func modulesConfig(version string) string {
	return fmt.Sprintf("qtmodules%s.conf", version)
}

// copyModulesConfig gives the new version the module list of its base.
func copyModulesConfig(buildDir, baseVersion, version string) error {
	if baseVersion == version {
		return nil
	}
	src := filepath.Join(buildDir, modulesConfig(baseVersion))
	dst := filepath.Join(buildDir, modulesConfig(version))
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy %s: %w", modulesConfig(baseVersion), err)
	}
	return nil
}

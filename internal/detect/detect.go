// Package detect inspects a project directory and identifies its
// language stack so gantry init can seed the config and test pipeline.
package detect

import (
	"os"
	"path/filepath"
)

// Stack describes what detection found. Zero values mean the probe for
// that ecosystem did not match.
type Stack struct {
	Language       string
	Framework      string
	PackageManager string
}

// probe inspects dir for one ecosystem. ok is false when the ecosystem
// is absent.
type probe func(dir string) (s Stack, ok bool)

// probes are tried in order; the first match wins. Node goes first so a
// repo carrying both package.json and go.mod (tooling wrappers) reports
// the stack its scripts drive.
var probes = []probe{
	probeNode,
	probeGo,
	probePython,
	probeRust,
	probeJVM,
}

// Detect identifies the project stack under dir. The zero Stack is
// returned for a directory no probe recognizes.
func Detect(dir string) Stack {
	for _, p := range probes {
		if s, ok := p(dir); ok {
			return s
		}
	}
	return Stack{}
}

// indicatorFiles mark a directory as an existing project rather than an
// empty one.
var indicatorFiles = []string{
	"package.json",
	"go.mod",
	"pyproject.toml",
	"requirements.txt",
	"setup.py",
	"Cargo.toml",
	"pom.xml",
	"build.gradle",
	"build.gradle.kts",
	"Gemfile",
	"composer.json",
}

// HasProject reports whether dir already contains a recognizable
// project. gantry init uses this to tell brownfield from greenfield.
func HasProject(dir string) bool {
	for _, name := range indicatorFiles {
		if exists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// read returns the file contents, or "" when the file cannot be read.
func read(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// pipeline.go assembles the default verification pipeline for a
// detected stack. gantry init writes the result into test_pipeline and
// the testing phase runs the commands in order.
package detect

import (
	"path/filepath"
	"strings"
)

// Pipeline returns the ordered verification commands for the stack, or
// nil when nothing can be detected. Commands are ordered cheapest
// first so a session fails fast on static checks before running tests.
func Pipeline(dir string, s Stack) []string {
	switch s.Language {
	case "typescript", "javascript":
		return nodePipeline(dir, s)
	case "go":
		return goPipeline(dir)
	case "python":
		return pythonPipeline(dir)
	case "rust":
		return []string{"cargo clippy", "cargo test"}
	case "java", "kotlin":
		if s.PackageManager == "gradle" {
			return []string{"gradle test"}
		}
		return []string{"mvn test"}
	default:
		return nil
	}
}

// nodePipeline keeps only the scripts the project actually defines,
// in check-before-build order.
func nodePipeline(dir string, s Stack) []string {
	pkg, ok := loadPackageJSON(dir)
	if !ok {
		return nil
	}

	pm := s.PackageManager
	if pm == "" {
		pm = "npm"
	}

	var cmds []string
	for _, script := range []string{"typecheck", "lint", "test", "build"} {
		if _, ok := pkg.Scripts[script]; ok {
			cmds = append(cmds, pm+" run "+script)
		}
	}
	return cmds
}

func goPipeline(dir string) []string {
	var cmds []string
	if exists(filepath.Join(dir, ".golangci.yml")) || exists(filepath.Join(dir, ".golangci.yaml")) {
		cmds = append(cmds, "golangci-lint run")
	}
	return append(cmds, "go vet ./...", "go test ./...")
}

func pythonPipeline(dir string) []string {
	var cmds []string
	if usesRuff(dir) {
		cmds = append(cmds, "ruff check .")
	}
	return append(cmds, "pytest")
}

func usesRuff(dir string) bool {
	if exists(filepath.Join(dir, "ruff.toml")) {
		return true
	}
	return strings.Contains(read(filepath.Join(dir, "pyproject.toml")), "[tool.ruff]")
}

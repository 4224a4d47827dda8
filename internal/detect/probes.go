// probes.go holds the per-ecosystem detection probes.
package detect

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// packageJSON is the subset of package.json detection cares about.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

func loadPackageJSON(dir string) (packageJSON, bool) {
	data := read(filepath.Join(dir, "package.json"))
	if data == "" {
		return packageJSON{}, false
	}
	var pkg packageJSON
	if err := json.Unmarshal([]byte(data), &pkg); err != nil {
		return packageJSON{}, false
	}
	return pkg, true
}

func (p packageJSON) has(dep string) bool {
	if _, ok := p.Dependencies[dep]; ok {
		return true
	}
	_, ok := p.DevDependencies[dep]
	return ok
}

func probeNode(dir string) (Stack, bool) {
	pkg, ok := loadPackageJSON(dir)
	if !ok {
		return Stack{}, false
	}

	s := Stack{Language: "javascript", PackageManager: "npm"}
	if exists(filepath.Join(dir, "tsconfig.json")) || pkg.has("typescript") {
		s.Language = "typescript"
	}

	switch {
	case exists(filepath.Join(dir, "pnpm-lock.yaml")):
		s.PackageManager = "pnpm"
	case exists(filepath.Join(dir, "yarn.lock")):
		s.PackageManager = "yarn"
	case exists(filepath.Join(dir, "bun.lockb")):
		s.PackageManager = "bun"
	}

	// Meta-frameworks before the libraries they wrap.
	for _, fw := range []string{"next", "nuxt", "react", "vue", "svelte", "express"} {
		if pkg.has(fw) {
			s.Framework = fw
			break
		}
	}

	return s, true
}

func probeGo(dir string) (Stack, bool) {
	gomod := read(filepath.Join(dir, "go.mod"))
	if gomod == "" {
		return Stack{}, false
	}

	s := Stack{Language: "go", Framework: "stdlib", PackageManager: "go"}
	for _, fw := range []struct{ module, name string }{
		{"github.com/gin-gonic/gin", "gin"},
		{"github.com/go-chi/chi", "chi"},
		{"github.com/labstack/echo", "echo"},
		{"github.com/gofiber/fiber", "fiber"},
	} {
		if strings.Contains(gomod, fw.module) {
			s.Framework = fw.name
			break
		}
	}

	return s, true
}

func probePython(dir string) (Stack, bool) {
	pyproject := read(filepath.Join(dir, "pyproject.toml"))
	requirements := read(filepath.Join(dir, "requirements.txt"))
	if pyproject == "" && requirements == "" && !exists(filepath.Join(dir, "setup.py")) {
		return Stack{}, false
	}

	s := Stack{Language: "python", PackageManager: "pip"}
	switch {
	case strings.Contains(pyproject, "[tool.poetry]"):
		s.PackageManager = "poetry"
	case exists(filepath.Join(dir, "uv.lock")):
		s.PackageManager = "uv"
	}

	deps := pyproject + "\n" + requirements
	switch {
	case strings.Contains(deps, "django") || exists(filepath.Join(dir, "manage.py")):
		s.Framework = "django"
	case strings.Contains(deps, "fastapi"):
		s.Framework = "fastapi"
	case strings.Contains(deps, "flask"):
		s.Framework = "flask"
	}

	return s, true
}

func probeRust(dir string) (Stack, bool) {
	cargo := read(filepath.Join(dir, "Cargo.toml"))
	if cargo == "" {
		return Stack{}, false
	}

	s := Stack{Language: "rust", PackageManager: "cargo"}
	for _, fw := range []string{"axum", "actix-web", "rocket", "tokio"} {
		if strings.Contains(cargo, fw) {
			s.Framework = fw
			break
		}
	}

	return s, true
}

func probeJVM(dir string) (Stack, bool) {
	hasMaven := exists(filepath.Join(dir, "pom.xml"))
	hasGradle := exists(filepath.Join(dir, "build.gradle")) || exists(filepath.Join(dir, "build.gradle.kts"))
	if !hasMaven && !hasGradle {
		return Stack{}, false
	}

	s := Stack{Language: "java", PackageManager: "maven"}
	if hasGradle {
		s.PackageManager = "gradle"
	}
	if exists(filepath.Join(dir, "build.gradle.kts")) || exists(filepath.Join(dir, "src", "main", "kotlin")) {
		s.Language = "kotlin"
	}

	build := read(filepath.Join(dir, "pom.xml")) +
		read(filepath.Join(dir, "build.gradle")) +
		read(filepath.Join(dir, "build.gradle.kts"))
	if strings.Contains(build, "spring-boot") || strings.Contains(build, "springframework.boot") {
		s.Framework = "spring-boot"
	}

	return s, true
}

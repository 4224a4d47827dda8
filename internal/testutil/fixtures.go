// Package testutil provides shared fixtures for gantry tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory populated with the given
// files and returns its path. Keys are slash-separated relative paths;
// parent directories are created as needed. The directory is removed
// when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}

	return dir
}

// GoProject is a minimal Go module.
func GoProject() map[string]string {
	return map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.23\n",
		"main.go": "package main\n\nfunc main() {}\n",
	}
}

// GoChiProject is a Go module that depends on chi.
func GoChiProject() map[string]string {
	return map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.23\n\nrequire github.com/go-chi/chi/v5 v5.0.12\n",
		"main.go": "package main\n\nfunc main() {}\n",
	}
}

// GoLintedProject is a Go module carrying a golangci-lint config.
func GoLintedProject() map[string]string {
	return map[string]string{
		"go.mod":        "module example.com/demo\n\ngo 1.23\n",
		"main.go":       "package main\n\nfunc main() {}\n",
		".golangci.yml": "linters:\n  enable:\n    - errcheck\n",
	}
}

// NodeProject is a TypeScript React app using pnpm, with the usual
// package.json scripts.
func NodeProject() map[string]string {
	return map[string]string{
		"package.json": `{
  "name": "demo",
  "version": "1.0.0",
  "dependencies": {"react": "^18.0.0"},
  "devDependencies": {"typescript": "^5.0.0"},
  "scripts": {
    "typecheck": "tsc --noEmit",
    "lint": "eslint .",
    "test": "vitest run",
    "build": "tsc"
  }
}`,
		"tsconfig.json":  `{"compilerOptions": {"strict": true}}`,
		"pnpm-lock.yaml": "lockfileVersion: '9.0'\n",
		"src/index.ts":   "export const main = () => {};\n",
	}
}

// NextProject is a Next.js app using yarn with a reduced script set.
func NextProject() map[string]string {
	return map[string]string{
		"package.json": `{
  "name": "demo-next",
  "version": "1.0.0",
  "dependencies": {"next": "^14.0.0", "react": "^18.0.0"},
  "scripts": {"build": "next build", "test": "jest", "lint": "next lint"}
}`,
		"tsconfig.json":   `{}`,
		"yarn.lock":       "",
		"pages/index.tsx": "export default function Home() { return null; }\n",
	}
}

// ExpressProject is a plain JavaScript project without tsconfig.
func ExpressProject() map[string]string {
	return map[string]string{
		"package.json": `{"name": "demo-js", "dependencies": {"express": "^4.0.0"}}`,
		"index.js":     "const express = require('express');\n",
	}
}

// PythonProject is a Flask app with a ruff section in pyproject.toml.
func PythonProject() map[string]string {
	return map[string]string{
		"pyproject.toml":   "[project]\nname = \"demo\"\n\n[tool.ruff]\nline-length = 100\n",
		"requirements.txt": "flask>=2.0\n",
		"app.py":           "from flask import Flask\napp = Flask(__name__)\n",
	}
}

// DjangoProject is a Django app managed through requirements.txt.
func DjangoProject() map[string]string {
	return map[string]string{
		"requirements.txt": "django>=4.0\n",
		"manage.py":        "#!/usr/bin/env python\nimport django\n",
	}
}

// RustProject is a Cargo crate depending on axum.
func RustProject() map[string]string {
	return map[string]string{
		"Cargo.toml":  "[package]\nname = \"demo\"\nversion = \"0.1.0\"\n\n[dependencies]\naxum = \"0.7\"\n",
		"src/main.rs": "fn main() {}\n",
	}
}

// MavenProject is a Spring Boot service built with Maven.
func MavenProject() map[string]string {
	return map[string]string{
		"pom.xml": `<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>com.demo</groupId>
  <artifactId>demo</artifactId>
  <parent>
    <groupId>org.springframework.boot</groupId>
    <artifactId>spring-boot-starter-parent</artifactId>
  </parent>
</project>`,
		"src/main/java/App.java": "public class App { public static void main(String[] args) {} }\n",
	}
}

// GradleKotlinProject is a Kotlin service built with Gradle.
func GradleKotlinProject() map[string]string {
	return map[string]string{
		"build.gradle.kts":       "plugins {\n    id(\"org.springframework.boot\") version \"3.0.0\"\n}\n",
		"src/main/kotlin/App.kt": "fun main() {}\n",
	}
}

// EmptyProject is a directory with no files at all.
func EmptyProject() map[string]string {
	return map[string]string{}
}

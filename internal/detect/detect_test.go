package detect

import (
	"testing"

	"github.com/gantry-dev/gantry/internal/testutil"
)

func TestDetectStacks(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  Stack
	}{
		{
			name:  "typescript react with pnpm",
			files: testutil.NodeProject(),
			want:  Stack{Language: "typescript", Framework: "react", PackageManager: "pnpm"},
		},
		{
			name:  "next with yarn",
			files: testutil.NextProject(),
			want:  Stack{Language: "typescript", Framework: "next", PackageManager: "yarn"},
		},
		{
			name:  "plain javascript express",
			files: testutil.ExpressProject(),
			want:  Stack{Language: "javascript", Framework: "express", PackageManager: "npm"},
		},
		{
			name:  "go stdlib",
			files: testutil.GoProject(),
			want:  Stack{Language: "go", Framework: "stdlib", PackageManager: "go"},
		},
		{
			name:  "go with chi",
			files: testutil.GoChiProject(),
			want:  Stack{Language: "go", Framework: "chi", PackageManager: "go"},
		},
		{
			name:  "python flask",
			files: testutil.PythonProject(),
			want:  Stack{Language: "python", Framework: "flask", PackageManager: "pip"},
		},
		{
			name:  "python django",
			files: testutil.DjangoProject(),
			want:  Stack{Language: "python", Framework: "django", PackageManager: "pip"},
		},
		{
			name:  "rust axum",
			files: testutil.RustProject(),
			want:  Stack{Language: "rust", Framework: "axum", PackageManager: "cargo"},
		},
		{
			name:  "java maven spring",
			files: testutil.MavenProject(),
			want:  Stack{Language: "java", Framework: "spring-boot", PackageManager: "maven"},
		},
		{
			name:  "kotlin gradle",
			files: testutil.GradleKotlinProject(),
			want:  Stack{Language: "kotlin", Framework: "spring-boot", PackageManager: "gradle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.TempProject(t, tt.files)
			got := Detect(dir)
			if got != tt.want {
				t.Errorf("Detect() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDetectEmptyDirectory(t *testing.T) {
	dir := testutil.TempProject(t, testutil.EmptyProject())
	if got := Detect(dir); got != (Stack{}) {
		t.Errorf("Detect() = %+v, want zero Stack for empty directory", got)
	}
}

func TestHasProject(t *testing.T) {
	for _, files := range []map[string]string{
		testutil.GoProject(),
		testutil.NodeProject(),
		testutil.PythonProject(),
		testutil.RustProject(),
		testutil.MavenProject(),
	} {
		dir := testutil.TempProject(t, files)
		if !HasProject(dir) {
			t.Errorf("HasProject() = false for %v", files)
		}
	}

	empty := testutil.TempProject(t, testutil.EmptyProject())
	if HasProject(empty) {
		t.Error("HasProject() = true for an empty directory")
	}
}

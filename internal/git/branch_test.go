package git

import "testing"

func TestSanitizeBranchName(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Add search filters", "gantry/add-search-filters"},
		{"Fix: flaky CI!!", "gantry/fix-flaky-ci"},
		{"  spaces   everywhere  ", "gantry/spaces-everywhere"},
		{"UPPER case And 123", "gantry/upper-case-and-123"},
		{"---", "gantry/session"},
		{"", "gantry/session"},
		{"unicode héllo wörld", "gantry/unicode-h-llo-w-rld"},
	}
	for _, tc := range cases {
		if got := SanitizeBranchName("gantry/", tc.text); got != tc.want {
			t.Errorf("SanitizeBranchName(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestSanitizeBranchNameLength(t *testing.T) {
	long := "a very long idea title that keeps going and going and going beyond any reasonable branch length"
	got := SanitizeBranchName("gantry/", long)
	if len(got) > 50 {
		t.Errorf("branch name %q is %d characters, want at most 50", got, len(got))
	}
	if got[len(got)-1] == '-' {
		t.Errorf("branch name %q should not end with a dash", got)
	}
}

// conflict.go scans accepted worker outputs for merge-conflict
// signatures before anything touches the working tree.
package milestone

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// declPattern matches a named top-level declaration across the languages
// coders commonly emit. Receiver methods and block forms like "const ("
// carry no captured name and are ignored.
var declPattern = regexp.MustCompile(`^(?:export\s+)?(?:func|type|class|interface|def|function|const|var|let)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// scanConflicts inspects every successful worker's files and reports the
// first conflict signature found:
//
//   - the same path produced by two different workers
//   - unresolved edit markers left in a file body
//   - the same top-level declaration emitted by two workers into one
//     directory
//
// Import lines repeat across files legitimately and are not treated as
// declarations.
func scanConflicts(results []WorkerResult) error {
	pathOwner := make(map[string]int)
	declOwner := make(map[string]int)

	for _, res := range results {
		if !res.Success {
			continue
		}
		for _, f := range res.Files {
			clean := filepath.Clean(f.Path)
			if owner, ok := pathOwner[clean]; ok && owner != res.Worker {
				return fmt.Errorf("workers %d and %d both produced %s", owner, res.Worker, clean)
			}
			pathOwner[clean] = res.Worker

			if line, found := findEditMarker(f.Content); found {
				return fmt.Errorf("%s contains an unresolved edit marker at line %d", clean, line)
			}

			dir := filepath.Dir(clean)
			for _, name := range topLevelDecls(f.Content) {
				key := dir + "\x00" + name
				if owner, ok := declOwner[key]; ok && owner != res.Worker {
					return fmt.Errorf("workers %d and %d both declare %s in %s", owner, res.Worker, name, dir)
				}
				declOwner[key] = res.Worker
			}
		}
	}
	return nil
}

// findEditMarker reports the first conflict-marker line. Only the opening
// and closing markers are checked: a bare "=======" is an ordinary
// markdown underline.
func findEditMarker(content string) (int, bool) {
	for i, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "<<<<<<<") || strings.HasPrefix(line, ">>>>>>>") {
			return i + 1, true
		}
	}
	return 0, false
}

// topLevelDecls extracts the named declarations introduced at column
// zero. Indented lines are nested and cannot collide across files.
func topLevelDecls(content string) []string {
	var names []string
	for _, line := range strings.Split(content, "\n") {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		if strings.HasPrefix(line, "import") || strings.HasPrefix(line, "from ") {
			continue
		}
		if m := declPattern.FindStringSubmatch(line); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

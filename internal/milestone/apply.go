// apply.go writes the accepted workers' files under the project root.
// It runs single-threaded after the fan-out has fully settled, so the
// working tree is never written concurrently.
package milestone

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// apply writes every successful worker's files and removes their delete
// targets, returning the touched paths sorted and deduplicated.
func (r *Runner) apply(results []WorkerResult) ([]string, error) {
	touched := make(map[string]bool)

	for _, res := range results {
		if !res.Success {
			continue
		}
		for _, f := range res.Files {
			rel, abs, err := r.resolve(f.Path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return nil, fmt.Errorf("creating directory for %s: %w", rel, err)
			}
			if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
				return nil, fmt.Errorf("writing %s: %w", rel, err)
			}
			touched[rel] = true
		}
		for _, p := range res.Deletes {
			rel, abs, err := r.resolve(p)
			if err != nil {
				return nil, err
			}
			if err := os.Remove(abs); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("removing %s: %w", rel, err)
			}
			touched[rel] = true
		}
	}

	applied := make([]string, 0, len(touched))
	for p := range touched {
		applied = append(applied, p)
	}
	sort.Strings(applied)
	return applied, nil
}

// resolve confines a worker-supplied path to the project root. Coder
// output is untrusted text; absolute paths and parent escapes are
// rejected rather than cleaned up.
func (r *Runner) resolve(p string) (rel, abs string, err error) {
	if p == "" {
		return "", "", fmt.Errorf("empty file path in worker output")
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path %q escapes the project root", p)
	}
	return filepath.ToSlash(clean), filepath.Join(r.cfg.Root, clean), nil
}

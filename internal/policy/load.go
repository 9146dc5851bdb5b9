package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadProfileFile parses and compiles every profile block in one file.
func LoadProfileFile(path string, catalog Catalog) ([]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	sources, err := ParseProfiles(string(data))
	if err != nil {
		return nil, err
	}
	out := make([]*Profile, 0, len(sources))
	for _, ps := range sources {
		p, err := Compile(ps, catalog)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// listProfileFiles returns the profile files directly under dir, sorted.
// Dotfiles, editor droppings, and subdirectories (the abstractions tree
// lives in one) are skipped.
func listProfileFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

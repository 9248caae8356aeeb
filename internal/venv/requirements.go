package venv

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseRequirements returns the distribution names declared in a pip
// requirements file, in file order and without duplicates (compared
// case-insensitively).
//
// Comments, blank lines, pip options (-r, -e, --index-url ...),
// environment markers, extras and version specifiers are dropped. pip does
// the real resolution; the names are only needed for reporting and for the
// import check in verify, so nested -r files are not followed.
func ParseRequirements(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := requirementName(scanner.Text())
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return names, nil
}

// requirementName extracts the distribution name from one requirements
// line, or "" when the line declares none.
func requirementName(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "-") {
		return ""
	}
	// "name @ https://..." direct references.
	if i := strings.Index(line, "@"); i >= 0 {
		line = line[:i]
	}
	// Cut at the first character that cannot be part of a distribution name.
	end := strings.IndexFunc(line, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.')
	})
	if end >= 0 {
		line = line[:end]
	}
	return strings.TrimSpace(line)
}

// importNames maps distributions whose import module differs from the
// normalized distribution name.
var importNames = map[string]string{
	"python-dotenv":     "dotenv",
	"pyyaml":            "yaml",
	"pydantic-settings": "pydantic_settings",
	"python-multipart":  "multipart",
	"beautifulsoup4":    "bs4",
	"pillow":            "PIL",
	"scikit-learn":      "sklearn",
	"opencv-python":     "cv2",
	"python-jose":       "jose",
	"pyjwt":             "jwt",
}

// ImportName returns the top-level module a distribution provides.
// Unknown distributions map to their lower-cased name with dashes and dots
// replaced by underscores, which holds for the vast majority of packages.
func ImportName(distribution string) string {
	name := strings.ToLower(strings.TrimSpace(distribution))
	if name == "" {
		return ""
	}
	normalized := strings.NewReplacer("_", "-", ".", "-").Replace(name)
	if mod, ok := importNames[normalized]; ok {
		return mod
	}
	return strings.ReplaceAll(normalized, "-", "_")
}

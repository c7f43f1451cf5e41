package watch

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// essentialPatterns are never watched: build output, caches and VCS data.
var essentialPatterns = []string{
	"unpackage/",
	"node_modules/",
	".git/",
	".hbuilderx/",
	".DS_Store",
	"*.log",
	"*.swp",
	"*~",
}

// IgnoreRules combines the essential patterns, <root>/.gitignore and extra.
func IgnoreRules(rootDir string, extra ...string) *ignore.GitIgnore {
	lines := append([]string{}, essentialPatterns...)
	if content, err := os.ReadFile(filepath.Join(rootDir, ".gitignore")); err == nil {
		lines = append(lines, strings.Split(string(content), "\n")...)
	}
	lines = append(lines, extra...)

	var filtered []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			filtered = append(filtered, line)
		}
	}
	return ignore.CompileIgnoreLines(filtered...)
}

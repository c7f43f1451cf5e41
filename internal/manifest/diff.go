package manifest

import (
	"sort"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff between two manifests, one "path token" line
// per entry in sorted order. Equal manifests yield "".
func Diff(before, after Manifest) string {
	u := difflib.UnifiedDiff{
		A:        lines(before),
		B:        lines(after),
		FromFile: "manifest (before)",
		ToFile:   "manifest (after)",
		Context:  1,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

func lines(m Manifest) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+" "+m[k]+"\n")
	}
	return out
}

// Package category maps document paths onto the knowledge taxonomy with a
// small ordered rule table. It is deliberately free of scoring logic; the
// classifier uses it as one signal among three.
package category

import (
	"path"
	"strings"

	"github.com/dl4rce/flaiwheel/pkg/types"
)

// Rule maps any of its substrings to a category. Rules are evaluated in
// order and the first match wins.
type Rule struct {
	Patterns []string
	Category types.Category
}

// DefaultRules is the path rule table. Order matters: "bugfix-log/api-timeout.md"
// must resolve to bugfix, not api.
var DefaultRules = []Rule{
	{Patterns: []string{"bugfix", "bug-fix"}, Category: types.CategoryBugfix},
	{Patterns: []string{"best-practice", "bestpractice"}, Category: types.CategoryBestPractice},
	{Patterns: []string{"api"}, Category: types.CategoryAPI},
	{Patterns: []string{"architect"}, Category: types.CategoryArchitecture},
	{Patterns: []string{"changelog", "release"}, Category: types.CategoryChangelog},
	{Patterns: []string{"setup", "install"}, Category: types.CategorySetup},
	{Patterns: []string{"readme"}, Category: types.CategoryReadme},
	{Patterns: []string{"test"}, Category: types.CategoryTest},
}

// targetDirs is where each category lives in a structured knowledge repo.
var targetDirs = map[types.Category]string{
	types.CategoryArchitecture: "architecture",
	types.CategoryAPI:          "api",
	types.CategoryBugfix:       "bugfix-log",
	types.CategoryBestPractice: "best-practices",
	types.CategorySetup:        "setup",
	types.CategoryChangelog:    "changelog",
	types.CategoryTest:         "tests",
}

// RootWhitelist lists files that belong in the docs root.
var RootWhitelist = map[string]bool{
	"README.md":          true,
	"FLAIWHEEL_TOOLS.md": true,
}

// Table is an ordered rule table.
type Table struct {
	rules []Rule
}

// NewTable builds a table from rules; nil uses DefaultRules.
func NewTable(rules []Rule) *Table {
	if rules == nil {
		rules = DefaultRules
	}
	return &Table{rules: rules}
}

// Detect returns the first matching category for p, or docs.
func (t *Table) Detect(p string) types.Category {
	lower := strings.ToLower(p)
	for _, rule := range t.rules {
		for _, pattern := range rule.Patterns {
			if strings.Contains(lower, pattern) {
				return rule.Category
			}
		}
	}
	return types.CategoryDocs
}

var defaultTable = NewTable(nil)

// Detect classifies a path with the default rule table.
func Detect(p string) types.Category {
	return defaultTable.Detect(p)
}

// DetectDir classifies only the directory part of a path; files in the docs
// root yield docs.
func DetectDir(p string) types.Category {
	dir := path.Dir(toSlash(p))
	if dir == "." || dir == "/" {
		return types.CategoryDocs
	}
	return defaultTable.Detect(dir)
}

// TargetDir returns the directory a category's documents belong in. Docs has
// no dedicated directory and returns "".
func TargetDir(c types.Category) string {
	return targetDirs[c]
}

// ExpectedDirs returns the top-level directories of a structured knowledge
// repository, in canonical order.
func ExpectedDirs() []string {
	dirs := make([]string, 0, len(types.ClassifiableCategories))
	for _, c := range types.ClassifiableCategories {
		dirs = append(dirs, targetDirs[c])
	}
	return dirs
}

// IsExpectedDir reports whether name is one of ExpectedDirs.
func IsExpectedDir(name string) bool {
	for _, c := range types.ClassifiableCategories {
		if targetDirs[c] == name {
			return true
		}
	}
	return false
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

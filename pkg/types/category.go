package types

import "strings"

// Category is the knowledge taxonomy a document belongs to.
type Category string

const (
	CategoryArchitecture Category = "architecture"
	CategoryAPI          Category = "api"
	CategoryBugfix       Category = "bugfix"
	CategoryBestPractice Category = "best-practice"
	CategorySetup        Category = "setup"
	CategoryChangelog    Category = "changelog"
	CategoryTest         Category = "test"
	CategoryReadme       Category = "readme"
	CategoryDocs         Category = "docs"
)

// ClassifiableCategories are the categories the classifier can route a
// document into, in their canonical order.
var ClassifiableCategories = []Category{
	CategoryArchitecture,
	CategoryAPI,
	CategoryBugfix,
	CategoryBestPractice,
	CategorySetup,
	CategoryChangelog,
	CategoryTest,
}

// categoryAliases maps directory names and common spellings to categories.
var categoryAliases = map[string]Category{
	"architecture":   CategoryArchitecture,
	"api":            CategoryAPI,
	"bugfix":         CategoryBugfix,
	"bugfix-log":     CategoryBugfix,
	"bug-fix":        CategoryBugfix,
	"best-practice":  CategoryBestPractice,
	"best-practices": CategoryBestPractice,
	"setup":          CategorySetup,
	"changelog":      CategoryChangelog,
	"test":           CategoryTest,
	"tests":          CategoryTest,
	"readme":         CategoryReadme,
	"docs":           CategoryDocs,
}

// ParseCategory resolves a category name or directory alias.
func ParseCategory(s string) (Category, error) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

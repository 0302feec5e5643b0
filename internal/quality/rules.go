package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

const (
	// nearlyEmptyChars is the meaningful-content length below which a
	// document draws a warning
	nearlyEmptyChars = 30
	// shortChars is the length below which a document draws an info note
	shortChars = 100
	// minSectionChars is the minimum content of a required-structure section
	minSectionChars = 20
)

var (
	// BugfixSections must appear as ## headings in bugfix entries
	BugfixSections = []string{"Root Cause", "Solution", "Lesson Learned"}
	// TestSections must appear as ## headings in test cases
	TestSections = []string{"Scenario", "Steps", "Expected Result"}
)

var (
	codeBlockPattern   = regexp.MustCompile("(?ms)^```.*?^```")
	headingLinePattern = regexp.MustCompile(`^#{1,6}\s+`)
	headingPattern     = regexp.MustCompile(`(?m)^(#{1,6})\s+`)
	h2Pattern          = regexp.MustCompile(`(?m)^(##\s+.+)$`)

	sectionPatterns = compileSections(append(append([]string{}, BugfixSections...), TestSections...))
)

// compileSections builds one matcher per required section. A heading may carry
// emphasis markers and one leading word or emoji before the section name.
func compileSections(names []string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(names))
	for _, name := range names {
		patterns[name] = regexp.MustCompile(`(?mi)^##\s+[\*_\s]*(?:\S+\s+)?` + regexp.QuoteMeta(name))
	}
	return patterns
}

// Evaluate checks one document. Markdown documents get the structural rules
// of their category; other formats only get the emptiness check.
func Evaluate(text string, cat types.Category, path string) []types.Issue {
	if !docs.IsMarkdown(path) {
		return checkPlain(text, path)
	}

	var issues []types.Issue
	issues = append(issues, checkCompleteness(text, path)...)
	issues = append(issues, checkHeadings(text, path)...)

	switch cat {
	case types.CategoryBugfix:
		issues = append(issues, checkRequiredSections(text, path, "Bugfix entry", BugfixSections)...)
	case types.CategoryTest:
		issues = append(issues, checkRequiredSections(text, path, "Test case", TestSections)...)
	}
	return issues
}

// CheckContent evaluates unsaved markdown as if it were written to the
// category's directory.
func CheckContent(text string, cat types.Category) []types.Issue {
	if cat == "" {
		cat = types.CategoryDocs
	}
	return Evaluate(text, cat, string(cat)+"/validate-preview.md")
}

func checkPlain(text, path string) []types.Issue {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return []types.Issue{issue(types.SeverityCritical, path, "File is empty.")}
	case utf8.RuneCountInString(trimmed) < nearlyEmptyChars:
		return []types.Issue{issue(types.SeverityWarning, path, "File is nearly empty (< 30 chars of content).")}
	}
	return nil
}

func checkCompleteness(text, path string) []types.Issue {
	n := utf8.RuneCountInString(stripMarkdownOverhead(text))
	switch {
	case n < nearlyEmptyChars:
		return []types.Issue{issue(types.SeverityWarning, path, "File is nearly empty (< 30 chars of content).")}
	case n < shortChars:
		return []types.Issue{issue(types.SeverityInfo, path, "File is very short (< 100 chars). Consider adding more detail.")}
	}
	return nil
}

func checkHeadings(text, path string) []types.Issue {
	matches := headingPattern.FindAllStringSubmatch(stripCodeBlocks(text), -1)
	if len(matches) == 0 {
		return []types.Issue{issue(types.SeverityInfo, path, "File has no headings. Add at least a # title.")}
	}

	var issues []types.Issue
	first := len(matches[0][1])
	if first > 1 {
		issues = append(issues, issue(types.SeverityInfo, path,
			fmt.Sprintf("First heading is level %d. Start with a # (h1) title.", first)))
	}

	seen := map[int]bool{first: true}
	for _, m := range matches[1:] {
		level := len(m[1])
		if !seen[level] && !seen[level-1] {
			if prev, ok := maxBelow(seen, level); ok {
				issues = append(issues, issue(types.SeverityInfo, path,
					fmt.Sprintf("Heading level jumps from h%d to h%d. Don't skip heading levels.", prev, level)))
				break
			}
		}
		seen[level] = true
	}
	return issues
}

func maxBelow(levels map[int]bool, level int) (int, bool) {
	best, found := 0, false
	for l := range levels {
		if l < level && l > best {
			best, found = l, true
		}
	}
	return best, found
}

func checkRequiredSections(text, path, kind string, required []string) []types.Issue {
	var issues []types.Issue
	for _, name := range required {
		if !sectionPatterns[name].MatchString(text) {
			issues = append(issues, issue(types.SeverityCritical, path,
				fmt.Sprintf("%s missing required section: '## %s'.", kind, name)))
		}
	}

	for _, sec := range splitH2Sections(text) {
		if utf8.RuneCountInString(stripMarkdownOverhead(sec.body)) < minSectionChars {
			issues = append(issues, issue(types.SeverityWarning, path,
				fmt.Sprintf("Section '## %s' has very little content.", sec.heading)))
		}
	}
	return issues
}

type h2Section struct {
	heading string
	body    string
}

// splitH2Sections returns each ## section with everything up to the next ##,
// including deeper subsections. Code blocks are removed first.
func splitH2Sections(text string) []h2Section {
	cleaned := stripCodeBlocks(text)
	locs := h2Pattern.FindAllStringIndex(cleaned, -1)

	sections := make([]h2Section, 0, len(locs))
	for i, loc := range locs {
		end := len(cleaned)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, h2Section{
			heading: strings.TrimSpace(strings.TrimLeft(cleaned[loc[0]:loc[1]], "#")),
			body:    cleaned[loc[1]:end],
		})
	}
	return sections
}

func stripCodeBlocks(text string) string {
	return codeBlockPattern.ReplaceAllString(text, "")
}

// stripMarkdownOverhead leaves the meaningful content: code blocks and
// heading lines are removed, lists and tables are kept.
func stripMarkdownOverhead(text string) string {
	lines := strings.Split(stripCodeBlocks(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if headingLinePattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func issue(sev types.Severity, file, message string) types.Issue {
	return types.Issue{Severity: sev, File: file, Message: message}
}

package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dl4rce/flaiwheel/internal/category"
	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

const (
	criticalPenalty = 10
	criticalCap     = 60
	warningPenalty  = 2
	warningCap      = 30
)

// Report is the result of a repository-wide quality check
type Report struct {
	Score       int `json:"score"`
	TotalIssues int `json:"total_issues"`
	types.IssueCounts
	Issues []types.Issue `json:"issues"`
}

// Gate runs quality checks over a docs tree. It never modifies the files it
// reads.
type Gate struct {
	extensions []string
	logger     *slog.Logger
}

// NewGate creates a gate over documents with the given extensions
func NewGate(extensions []string, logger *slog.Logger) *Gate {
	if len(extensions) == 0 {
		extensions = docs.DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{extensions: extensions, logger: logger}
}

// Evaluate checks one document
func (g *Gate) Evaluate(text string, cat types.Category, path string) []types.Issue {
	return Evaluate(text, cat, path)
}

// CheckContent checks unsaved content against the rules of a category
func (g *Gate) CheckContent(text string, cat types.Category) []types.Issue {
	return CheckContent(text, cat)
}

// Report checks the structure and every document under root. A non-empty
// filter keeps only issues whose path belongs to that category.
func (g *Gate) Report(ctx context.Context, root string, filter types.Category) (*Report, error) {
	files, err := docs.Discover(root, g.extensions)
	if errors.Is(err, docs.ErrRootMissing) {
		// An unreachable docs tree scores zero regardless of the penalty caps
		report := NewReport([]types.Issue{issue(types.SeverityCritical, root, "Docs path does not exist")})
		report.Score = 0
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discover documents: %w", err)
	}

	var issues []types.Issue
	issues = append(issues, checkStructure(root, files)...)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if docs.IsPlaceholderReadme(f.Path) {
			continue
		}
		content, err := docs.Read(f.AbsPath)
		if err != nil {
			g.logger.Warn("quality check skipped unreadable file", slog.String("path", f.Path), slog.Any("error", err))
			continue
		}
		issues = append(issues, Evaluate(string(content), category.Detect(f.Path), f.Path)...)
	}

	issues = append(issues, checkOrphans(files)...)

	if filter != "" {
		kept := issues[:0]
		for _, is := range issues {
			if category.Detect(is.File) == filter {
				kept = append(kept, is)
			}
		}
		issues = kept
	}

	return NewReport(issues), nil
}

// NewReport scores a list of issues
func NewReport(issues []types.Issue) *Report {
	if issues == nil {
		issues = []types.Issue{}
	}
	return &Report{
		Score:       Score(issues),
		TotalIssues: len(issues),
		IssueCounts: types.CountIssues(issues),
		Issues:      issues,
	}
}

// Score starts at 100 and deducts 10 per critical issue (at most 60) and 2 per
// warning (at most 30). Info issues are free.
func Score(issues []types.Issue) int {
	counts := types.CountIssues(issues)
	score := 100 - min(counts.Critical*criticalPenalty, criticalCap) - min(counts.Warnings*warningPenalty, warningCap)
	return max(score, 0)
}

func checkStructure(root string, files []docs.File) []types.Issue {
	var issues []types.Issue
	for _, dir := range category.ExpectedDirs() {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			issues = append(issues, issue(types.SeverityInfo, dir,
				fmt.Sprintf("Expected directory '%s/' not found. Create it to keep the knowledge base organized.", dir)))
			continue
		}
		if !containsFileUnder(files, dir) {
			issues = append(issues, issue(types.SeverityInfo, dir,
				fmt.Sprintf("Directory '%s/' exists but contains no supported files.", dir)))
		}
	}

	if _, err := os.Stat(filepath.Join(root, "README.md")); err != nil {
		issues = append(issues, issue(types.SeverityWarning, "README.md",
			"No README.md in docs root. Add one as an index/overview."))
	}
	return issues
}

func containsFileUnder(files []docs.File, dir string) bool {
	for _, f := range files {
		if strings.HasPrefix(f.Path, dir+"/") {
			return true
		}
	}
	return false
}

func checkOrphans(files []docs.File) []types.Issue {
	expected := strings.Join(category.ExpectedDirs(), ", ")

	var issues []types.Issue
	for _, f := range files {
		top := docs.TopDir(f.Path)
		switch {
		case top == "" && !category.RootWhitelist[f.Path]:
			issues = append(issues, issue(types.SeverityInfo, f.Path,
				fmt.Sprintf("File is in docs root instead of a category folder. Move to an appropriate directory (%s).", expected)))
		case top != "" && !category.IsExpectedDir(top):
			issues = append(issues, issue(types.SeverityInfo, f.Path,
				fmt.Sprintf("File is in non-standard directory '%s/'. Expected: %s.", top, expected)))
		}
	}
	return issues
}

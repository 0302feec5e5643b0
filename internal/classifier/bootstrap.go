package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dl4rce/flaiwheel/internal/category"
	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// ActionType is the kind of a proposed cleanup step
type ActionType string

const (
	ActionCreateDir  ActionType = "create_dir"
	ActionMove       ActionType = "move"
	ActionFlagReview ActionType = "flag_review"
)

// rewriteMinWords is the word count above which an unstructured markdown
// file is proposed for a rewrite
const rewriteMinWords = 50

// Projected quality gain per proposed action, capped
const (
	moveGain         = 2
	createDirGain    = 1
	projectedGainCap = 30
)

var anyHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

// Action is one proposed step. Nothing is executed by the classifier.
type Action struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Path       string     `json:"path,omitempty"`
	From       string     `json:"from,omitempty"`
	To         string     `json:"to,omitempty"`
	Files      []string   `json:"files,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
	Reason     string     `json:"reason"`
}

// FileEntry describes one scanned document
type FileEntry struct {
	Path          string         `json:"path"`
	Format        string         `json:"format"`
	SizeBytes     int64          `json:"size_bytes"`
	WordCount     int            `json:"word_count"`
	HasHeadings   bool           `json:"has_headings"`
	Category      types.Category `json:"detected_category"`
	Confidence    float64        `json:"confidence"`
	Ambiguous     bool           `json:"ambiguous,omitempty"`
	QualityIssues []string       `json:"quality_issues,omitempty"`
	Destination   string         `json:"proposed_destination,omitempty"`
}

// Cluster is a group of near-duplicate documents, earliest first
type Cluster struct {
	Files      []string `json:"files"`
	Similarity float64  `json:"similarity"`
}

// Rewrite flags a document that needs restructuring
type Rewrite struct {
	File     string         `json:"file"`
	Reason   string         `json:"reason"`
	Category types.Category `json:"detected_category"`
}

// PlanSummary aggregates a Plan
type PlanSummary struct {
	TotalFiles         int `json:"total_files"`
	CategoriesDetected int `json:"categories_detected"`
	FilesMisplaced     int `json:"files_misplaced"`
	FilesAmbiguous     int `json:"files_ambiguous"`
	DuplicateClusters  int `json:"duplicate_clusters"`
	DirsToCreate       int `json:"dirs_to_create"`
	FilesNeedRewrite   int `json:"files_need_rewrite"`
	QualityBefore      int `json:"quality_score_before"`
	QualityProjected   int `json:"quality_score_projected"`
	TotalActions       int `json:"total_actions"`
}

// Plan is the read-only outcome of Bootstrap
type Plan struct {
	Summary      PlanSummary     `json:"summary"`
	Files        []FileEntry     `json:"file_inventory"`
	Verdicts     []types.Verdict `json:"verdicts"`
	Duplicates   []Cluster       `json:"duplicate_clusters"`
	Actions      []Action        `json:"proposed_actions"`
	NeedsRewrite []Rewrite       `json:"needs_ai_rewrite"`
}

type scanned struct {
	file        docs.File
	text        string
	hasHeadings bool
	words       int
}

// Bootstrap analyses an unstructured docs tree and proposes how to organise
// it into the category directories. It only reads: directories to create,
// files to move and duplicates to review are returned as actions for the
// caller to execute deliberately.
func (c *Classifier) Bootstrap(ctx context.Context, emb embedder.Embedder, root string) (*Plan, error) {
	files, err := docs.Discover(root, c.cfg.Extensions)
	if err != nil {
		return nil, err
	}

	var items []scanned
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := docs.Read(f.AbsPath)
		if err != nil {
			c.logger.Warn("bootstrap skipped unreadable file", slog.String("path", f.Path), slog.Any("error", err))
			continue
		}
		text := string(content)
		items = append(items, scanned{
			file:        f,
			text:        text,
			hasHeadings: anyHeading.MatchString(text),
			words:       len(strings.Fields(text)),
		})
	}

	plan := &Plan{
		Files:        []FileEntry{},
		Verdicts:     []types.Verdict{},
		Duplicates:   []Cluster{},
		Actions:      []Action{},
		NeedsRewrite: []Rewrite{},
	}
	if len(items) == 0 {
		plan.Summary.QualityBefore = 100
		plan.Summary.QualityProjected = 100
		return plan, nil
	}

	batch := make([]Input, len(items))
	for i, it := range items {
		batch[i] = Input{Path: it.file.Path, Preview: it.text}
	}
	verdicts, err := c.Classify(ctx, emb, batch)
	if err != nil {
		return nil, err
	}
	plan.Verdicts = verdicts
	plan.Duplicates = clusters(verdicts)

	report, err := c.gate.Report(ctx, root, "")
	if err != nil {
		return nil, fmt.Errorf("quality report: %w", err)
	}
	plan.Summary.QualityBefore = report.Score

	b := &planBuilder{plan: plan}
	existing, err := topLevelDirs(root)
	if err != nil {
		return nil, err
	}
	for _, dir := range category.ExpectedDirs() {
		if !existing[dir] {
			b.add(Action{Type: ActionCreateDir, Path: dir + "/", Reason: "Standard knowledge base directory"})
		}
	}

	categories := make(map[types.Category]bool)
	for i, it := range items {
		v := verdicts[i]
		categories[v.Category] = true
		entry := FileEntry{
			Path:        it.file.Path,
			Format:      strings.ToLower(filepath.Ext(it.file.Path)),
			SizeBytes:   it.file.Size,
			WordCount:   it.words,
			HasHeadings: it.hasHeadings,
			Category:    v.Category,
			Confidence:  v.Confidence,
			Ambiguous:   v.Ambiguous,
		}
		for _, is := range c.gate.Evaluate(it.text, category.Detect(it.file.Path), it.file.Path) {
			entry.QualityIssues = append(entry.QualityIssues, is.Message)
		}

		if dest, ok := b.placement(it.file.Path, v); ok {
			entry.Destination = dest
		}
		if docs.IsMarkdown(it.file.Path) && !it.hasHeadings && it.words > rewriteMinWords {
			plan.NeedsRewrite = append(plan.NeedsRewrite, Rewrite{
				File:     it.file.Path,
				Reason:   "No headings or structure, needs reorganization",
				Category: v.Category,
			})
		}
		plan.Files = append(plan.Files, entry)
	}

	for _, cl := range plan.Duplicates {
		b.add(Action{
			Type:       ActionFlagReview,
			Files:      cl.Files,
			Similarity: cl.Similarity,
			Reason: fmt.Sprintf("Near-duplicate files (similarity: %.0f%%). Review and merge into %s",
				cl.Similarity*100, cl.Files[0]),
		})
	}

	s := &plan.Summary
	s.TotalFiles = len(items)
	s.CategoriesDetected = len(categories)
	s.DuplicateClusters = len(plan.Duplicates)
	s.FilesNeedRewrite = len(plan.NeedsRewrite)
	s.TotalActions = len(plan.Actions)
	for _, a := range plan.Actions {
		switch a.Type {
		case ActionMove:
			s.FilesMisplaced++
		case ActionCreateDir:
			s.DirsToCreate++
		}
	}
	for _, f := range plan.Files {
		if f.Ambiguous {
			s.FilesAmbiguous++
		}
	}
	gain := min(s.FilesMisplaced*moveGain+s.DirsToCreate*createDirGain, projectedGainCap)
	s.QualityProjected = min(s.QualityBefore+gain, 100)

	return plan, nil
}

type planBuilder struct {
	plan *Plan
	next int
}

func (b *planBuilder) add(a Action) {
	b.next++
	a.ID = fmt.Sprintf("a%d", b.next)
	b.plan.Actions = append(b.plan.Actions, a)
}

// placement proposes a move for a file at the root or in a non-standard
// directory. Ambiguous verdicts are flagged for review instead of moved.
func (b *planBuilder) placement(p string, v types.Verdict) (string, bool) {
	top := docs.TopDir(p)
	if top != "" && category.IsExpectedDir(top) {
		return "", false
	}
	if top == "" && category.RootWhitelist[p] {
		return "", false
	}
	if v.TargetDir == "" {
		return "", false
	}

	if v.Ambiguous {
		b.add(Action{
			Type:  ActionFlagReview,
			Files: []string{p},
			Reason: fmt.Sprintf("Ambiguous between '%s' and '%s' (confidence: %.0f%%)",
				v.Category, v.RunnerUp, v.Confidence*100),
		})
		return "", false
	}

	dest := v.TargetDir + "/" + path.Base(p)
	if dest == p {
		return "", false
	}
	b.add(Action{
		Type:   ActionMove,
		From:   p,
		To:     dest,
		Reason: fmt.Sprintf("Classified as '%s' (confidence: %.0f%%)", v.Category, v.Confidence*100),
	})
	return dest, true
}

// clusters groups duplicate verdicts by the document they point at
func clusters(verdicts []types.Verdict) []Cluster {
	index := make(map[string]int)
	var out []Cluster
	sums := make(map[string]float64)

	for _, v := range verdicts {
		if v.DuplicateOf == "" {
			continue
		}
		i, ok := index[v.DuplicateOf]
		if !ok {
			i = len(out)
			index[v.DuplicateOf] = i
			out = append(out, Cluster{Files: []string{v.DuplicateOf}})
		}
		out[i].Files = append(out[i].Files, v.Path)
		sums[v.DuplicateOf] += v.Similarity
	}

	for i := range out {
		root := out[i].Files[0]
		out[i].Similarity = round3(sums[root] / float64(len(out[i].Files)-1))
	}
	if out == nil {
		out = []Cluster{}
	}
	return out
}

func topLevelDirs(root string) (map[string]bool, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", docs.ErrRootMissing, root)
	}
	if err != nil {
		return nil, fmt.Errorf("read docs root: %w", err)
	}
	dirs := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs[e.Name()] = true
		}
	}
	return dirs, nil
}

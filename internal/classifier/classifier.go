package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dl4rce/flaiwheel/internal/category"
	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/quality"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// Default signal weights and thresholds
const (
	DefaultPathWeight         = 0.45
	DefaultKeywordWeight      = 0.25
	DefaultEmbeddingWeight    = 0.30
	DefaultAmbiguityMargin    = 0.05
	DefaultDuplicateThreshold = 0.92
	DefaultFallbackThreshold  = 0.15
	DefaultPreviewChars       = 2000
)

// Path signal strengths
const (
	pathDirScore  = 1.0
	pathFileScore = 0.6
)

// tieEpsilon is the combined score difference below which two categories tie
const tieEpsilon = 1e-9

// Config tunes the consensus combiner
type Config struct {
	PathWeight         float64
	KeywordWeight      float64
	EmbeddingWeight    float64
	AmbiguityMargin    float64
	DuplicateThreshold float64
	FallbackThreshold  float64
	PreviewChars       int
	Workers            int
	Extensions         []string
}

// DefaultConfig returns the default weights and thresholds
func DefaultConfig() Config {
	return Config{
		PathWeight:         DefaultPathWeight,
		KeywordWeight:      DefaultKeywordWeight,
		EmbeddingWeight:    DefaultEmbeddingWeight,
		AmbiguityMargin:    DefaultAmbiguityMargin,
		DuplicateThreshold: DefaultDuplicateThreshold,
		FallbackThreshold:  DefaultFallbackThreshold,
		PreviewChars:       DefaultPreviewChars,
		Workers:            runtime.NumCPU(),
		Extensions:         docs.DefaultExtensions,
	}
}

// Validate checks weights and thresholds
func (c Config) Validate() error {
	if c.PathWeight < 0 || c.KeywordWeight < 0 || c.EmbeddingWeight < 0 {
		return errors.New("classifier weights must not be negative")
	}
	if c.PathWeight+c.KeywordWeight+c.EmbeddingWeight == 0 {
		return errors.New("at least one classifier weight must be positive")
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin > 1 {
		return fmt.Errorf("ambiguity margin %.2f out of range [0, 1]", c.AmbiguityMargin)
	}
	if c.DuplicateThreshold <= 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate threshold %.2f out of range (0, 1]", c.DuplicateThreshold)
	}
	if c.FallbackThreshold < 0 || c.FallbackThreshold > 1 {
		return fmt.Errorf("fallback threshold %.2f out of range [0, 1]", c.FallbackThreshold)
	}
	if c.PreviewChars <= 0 {
		return errors.New("preview chars must be positive")
	}
	return nil
}

// Input is one document to classify
type Input struct {
	Path    string `json:"path"`
	Preview string `json:"preview_text"`
}

// Classifier routes documents into categories by combining a path hint, a
// keyword match and embedding similarity to category templates. It is
// read-only: it never touches the documents it classifies.
type Classifier struct {
	cfg       Config
	keywords  *keywordMatcher
	templates *templateCache
	gate      *quality.Gate
	logger    *slog.Logger
}

// New creates a classifier. Zero-valued weights and thresholds fall back to
// the defaults as a whole.
func New(cfg Config, logger *slog.Logger) (*Classifier, error) {
	def := DefaultConfig()
	if cfg.PathWeight == 0 && cfg.KeywordWeight == 0 && cfg.EmbeddingWeight == 0 {
		cfg.PathWeight, cfg.KeywordWeight, cfg.EmbeddingWeight = def.PathWeight, def.KeywordWeight, def.EmbeddingWeight
	}
	if cfg.AmbiguityMargin == 0 {
		cfg.AmbiguityMargin = def.AmbiguityMargin
	}
	if cfg.DuplicateThreshold == 0 {
		cfg.DuplicateThreshold = def.DuplicateThreshold
	}
	if cfg.FallbackThreshold == 0 {
		cfg.FallbackThreshold = def.FallbackThreshold
	}
	if cfg.PreviewChars == 0 {
		cfg.PreviewChars = def.PreviewChars
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = def.Extensions
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	keywords, err := newKeywordMatcher()
	if err != nil {
		return nil, err
	}
	tmpl, err := newTemplateCache()
	if err != nil {
		return nil, err
	}

	return &Classifier{
		cfg:       cfg,
		keywords:  keywords,
		templates: tmpl,
		gate:      quality.NewGate(cfg.Extensions, logger),
		logger:    logger,
	}, nil
}

// Config returns the effective configuration
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify returns one verdict per input, in input order. emb may be nil, in
// which case the embedding signal and duplicate detection are skipped. An
// embedding failure degrades the same way and is logged; only cancellation
// is returned as an error.
func (c *Classifier) Classify(ctx context.Context, emb embedder.Embedder, batch []Input) ([]types.Verdict, error) {
	if len(batch) == 0 {
		return []types.Verdict{}, nil
	}

	previews := make([]string, len(batch))
	for i, in := range batch {
		previews[i] = truncate(in.Preview, c.cfg.PreviewChars)
	}

	keywordScores := make([]map[types.Category]float64, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			keywordScores[i] = c.keywords.scores(previews[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectors, tmpl, err := c.embed(ctx, emb, previews)
	if err != nil {
		return nil, err
	}

	verdicts := make([]types.Verdict, len(batch))
	for i, in := range batch {
		scores := make(map[types.Category]types.SignalScores, len(types.ClassifiableCategories))
		pathScores := pathSignal(in.Path)
		for _, cat := range types.ClassifiableCategories {
			s := types.SignalScores{
				Path:    pathScores[cat],
				Keyword: keywordScores[i][cat],
			}
			if vectors != nil && vectors[i] != nil {
				s.Embedding = math.Max(0, storage.CosineSimilarity(vectors[i], tmpl[cat]))
			}
			s.Combined = c.cfg.PathWeight*s.Path + c.cfg.KeywordWeight*s.Keyword + c.cfg.EmbeddingWeight*s.Embedding
			scores[cat] = s
		}
		verdicts[i] = c.decide(in.Path, scores)
	}

	if vectors != nil {
		for i, d := range findDuplicates(vectors, c.cfg.DuplicateThreshold) {
			verdicts[i].DuplicateOf = batch[d.of].Path
			verdicts[i].Similarity = round3(d.similarity)
		}
	}
	return verdicts, nil
}

// embed returns preview vectors (nil for blank previews) and the template
// vectors of emb. Both are nil when emb is nil or the provider fails.
func (c *Classifier) embed(ctx context.Context, emb embedder.Embedder, previews []string) ([][]float32, templateVectors, error) {
	if emb == nil {
		return nil, nil, nil
	}

	tmpl, err := c.templates.get(ctx, emb)
	if err == nil {
		var vectors [][]float32
		vectors, err = c.embedPreviews(ctx, emb, previews)
		if err == nil {
			return vectors, tmpl, nil
		}
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	c.logger.Warn("embedding signal unavailable, classifying by path and keywords",
		slog.String("model", modelKey(emb)),
		slog.Any("error", err))
	return nil, nil, nil
}

func (c *Classifier) embedPreviews(ctx context.Context, emb embedder.Embedder, previews []string) ([][]float32, error) {
	var texts []string
	var index []int
	for i, p := range previews {
		if strings.TrimSpace(p) == "" {
			continue
		}
		texts = append(texts, p)
		index = append(index, i)
	}

	vectors := make([][]float32, len(previews))
	if len(texts) == 0 {
		return vectors, nil
	}
	embedded, err := embedder.EmbedAll(ctx, emb, texts)
	if err != nil {
		return nil, err
	}
	for j, i := range index {
		vectors[i] = embedded[j]
	}
	return vectors, nil
}

// decide picks the winning category. Ties go to the stronger path signal,
// then to canonical category order.
func (c *Classifier) decide(docPath string, scores map[types.Category]types.SignalScores) types.Verdict {
	var best, second types.Category
	for _, cat := range types.ClassifiableCategories {
		switch {
		case best == "" || beats(scores[cat], scores[best]):
			best, second = cat, best
		case second == "" || beats(scores[cat], scores[second]):
			second = cat
		}
	}

	top := scores[best]
	rounded := make(map[types.Category]types.SignalScores, len(scores))
	for cat, s := range scores {
		rounded[cat] = roundScores(s)
	}
	v := types.Verdict{
		Path:       docPath,
		Category:   best,
		Confidence: round3(top.Combined),
		Signals:    rounded[best],
		Scores:     rounded,
		TargetDir:  category.TargetDir(best),
	}

	if top.Combined < c.cfg.FallbackThreshold {
		v.Category = types.CategoryDocs
		v.TargetDir = ""
		return v
	}
	if top.Combined-scores[second].Combined < c.cfg.AmbiguityMargin {
		v.Ambiguous = true
		v.RunnerUp = second
	}
	return v
}

func beats(a, b types.SignalScores) bool {
	if math.Abs(a.Combined-b.Combined) <= tieEpsilon {
		return a.Path > b.Path
	}
	return a.Combined > b.Combined
}

// pathSignal scores the directory part of a path at full strength and the
// file name alone at a reduced strength.
func pathSignal(p string) map[types.Category]float64 {
	scores := make(map[types.Category]float64, 2)
	p = strings.ReplaceAll(p, "\\", "/")

	if cat := category.Detect(path.Base(p)); cat != types.CategoryDocs {
		scores[cat] = pathFileScore
	}
	if cat := category.DetectDir(p); cat != types.CategoryDocs {
		scores[cat] = pathDirScore
	}
	return scores
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}

func roundScores(s types.SignalScores) types.SignalScores {
	return types.SignalScores{
		Path:      round3(s.Path),
		Keyword:   round3(s.Keyword),
		Embedding: round3(s.Embedding),
		Combined:  round3(s.Combined),
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

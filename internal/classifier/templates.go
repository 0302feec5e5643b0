package classifier

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// templates are canonical descriptions of each category. A preview's
// embedding signal is its similarity to the template's embedding.
var templates = map[types.Category]string{
	types.CategoryArchitecture: "Software architecture design decisions, system components, " +
		"data flow diagrams, technology stack choices, design patterns",
	types.CategoryAPI: "API endpoint documentation, REST HTTP methods, request response schemas, " +
		"authentication headers, rate limits, GraphQL queries",
	types.CategoryBugfix: "Bug report, root cause analysis, solution, fix, lesson learned, " +
		"error trace, stack trace, debugging, regression",
	types.CategoryBestPractice: "Coding standards, style guide, best practices, conventions, " +
		"linting rules, code review checklist, naming conventions",
	types.CategorySetup: "Installation setup deployment configuration, environment variables, " +
		"Docker compose, CI/CD pipeline, infrastructure provisioning",
	types.CategoryChangelog: "Release notes, version changelog, what's new, breaking changes, " +
		"migration guide, upgrade instructions, release date",
	types.CategoryTest: "Test case scenario, test steps, expected result, preconditions, " +
		"regression test, integration test, unit test, QA",
}

// maxTemplateModels bounds how many embedding models keep cached templates
const maxTemplateModels = 8

type templateVectors map[types.Category][]float32

// templateCache embeds the templates once per embedding model
type templateCache struct {
	cache *lru.Cache[string, templateVectors]
}

func newTemplateCache() (*templateCache, error) {
	cache, err := lru.New[string, templateVectors](maxTemplateModels)
	if err != nil {
		return nil, err
	}
	return &templateCache{cache: cache}, nil
}

func modelKey(emb embedder.Embedder) string {
	return fmt.Sprintf("%s/%s/%d", emb.Provider(), emb.Model(), emb.Dimension())
}

// get returns the template vectors for emb, embedding them on first use
func (t *templateCache) get(ctx context.Context, emb embedder.Embedder) (templateVectors, error) {
	key := modelKey(emb)
	if vecs, ok := t.cache.Get(key); ok {
		return vecs, nil
	}

	texts := make([]string, len(types.ClassifiableCategories))
	for i, cat := range types.ClassifiableCategories {
		texts[i] = templates[cat]
	}
	vectors, err := embedder.EmbedAll(ctx, emb, texts)
	if err != nil {
		return nil, fmt.Errorf("embed category templates: %w", err)
	}

	vecs := make(templateVectors, len(vectors))
	for i, cat := range types.ClassifiableCategories {
		vecs[cat] = vectors[i]
	}
	t.cache.Add(key, vecs)
	return vecs, nil
}

func (t *templateCache) len() int {
	return t.cache.Len()
}

package classifier

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/dl4rce/flaiwheel/pkg/types"
)

// keywordGroups lists, per category, groups of phrases that must all occur
// in a preview for the group to match.
var keywordGroups = map[types.Category][][]string{
	types.CategoryBugfix: {
		{"root cause", "solution"},
		{"bug", "fix"},
		{"error", "trace", "fix"},
	},
	types.CategoryAPI: {
		{"endpoint", "request"},
		{"endpoint", "response"},
		{"rest", "http"},
	},
	types.CategoryArchitecture: {
		{"architecture", "design"},
		{"system", "component", "diagram"},
		{"design decision"},
		{"technology stack"},
	},
	types.CategorySetup: {
		{"install", "setup"},
		{"deploy", "configuration"},
		{"docker", "compose"},
		{"environment", "variable"},
	},
	types.CategoryChangelog: {
		{"version", "release"},
		{"changelog"},
		{"breaking change"},
	},
	types.CategoryBestPractice: {
		{"best practice"},
		{"coding standard"},
		{"convention"},
		{"style guide"},
	},
	types.CategoryTest: {
		{"test case", "scenario"},
		{"test", "expected result"},
		{"regression test"},
	},
}

const (
	keywordGroupWeight = 0.25
	keywordExtraGroup  = 0.05
	keywordHitWeight   = 0.01
	keywordMax         = 0.9
)

// phrase is an analyzed keyword: stemmed terms with their offsets from the
// first term, so stop words inside a phrase keep their gap.
type phrase struct {
	terms   []string
	offsets []int
}

type compiledGroup []phrase

// keywordMatcher scores previews against the keyword groups. Previews and
// phrases go through the same bleve English analyzer, so "fixed" matches
// "fix" and "Breaking Changes" matches "breaking change".
type keywordMatcher struct {
	analyzer analysis.Analyzer
	groups   map[types.Category][]compiledGroup
}

func newKeywordMatcher() (*keywordMatcher, error) {
	cache := registry.NewCache()
	analyzer, err := cache.AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("load english analyzer: %w", err)
	}

	m := &keywordMatcher{
		analyzer: analyzer,
		groups:   make(map[types.Category][]compiledGroup, len(keywordGroups)),
	}
	for cat, groups := range keywordGroups {
		for _, group := range groups {
			var cg compiledGroup
			for _, text := range group {
				p := m.compile(text)
				if len(p.terms) == 0 {
					return nil, fmt.Errorf("keyword %q has no indexable terms", text)
				}
				cg = append(cg, p)
			}
			m.groups[cat] = append(m.groups[cat], cg)
		}
	}
	return m, nil
}

func (m *keywordMatcher) compile(text string) phrase {
	var p phrase
	tokens := m.analyzer.Analyze([]byte(text))
	for _, tok := range tokens {
		p.terms = append(p.terms, string(tok.Term))
		p.offsets = append(p.offsets, tok.Position-tokens[0].Position)
	}
	return p
}

// termIndex maps each analyzed term of a text to its token positions
type termIndex map[string]map[int]struct{}

func (m *keywordMatcher) index(text string) termIndex {
	idx := make(termIndex)
	for _, tok := range m.analyzer.Analyze([]byte(text)) {
		term := string(tok.Term)
		if idx[term] == nil {
			idx[term] = make(map[int]struct{})
		}
		idx[term][tok.Position] = struct{}{}
	}
	return idx
}

// occurrences counts where every term of p appears at its offset
func (idx termIndex) occurrences(p phrase) int {
	n := 0
	for start := range idx[p.terms[0]] {
		matched := true
		for i := 1; i < len(p.terms); i++ {
			if _, ok := idx[p.terms[i]][start+p.offsets[i]]; !ok {
				matched = false
				break
			}
		}
		if matched {
			n++
		}
	}
	return n
}

// scores returns the keyword signal of text for every category that has
// keyword groups.
func (m *keywordMatcher) scores(text string) map[types.Category]float64 {
	idx := m.index(text)
	out := make(map[types.Category]float64, len(m.groups))
	for cat, groups := range m.groups {
		out[cat] = groupScore(idx, groups)
	}
	return out
}

// groupScore rewards the largest fully matched group, then any further
// matched groups, then raw phrase frequency.
func groupScore(idx termIndex, groups []compiledGroup) float64 {
	best, matched, hits := 0, 0, 0
	counted := make(map[string]bool)

	for _, group := range groups {
		all := true
		for _, p := range group {
			n := idx.occurrences(p)
			if n == 0 {
				all = false
				continue
			}
			key := fmt.Sprint(p.terms)
			if !counted[key] {
				counted[key] = true
				hits += n
			}
		}
		if all {
			matched++
			best = max(best, len(group))
		}
	}

	score := keywordGroupWeight*float64(best) + keywordHitWeight*float64(hits)
	if matched > 1 {
		score += keywordExtraGroup * float64(matched-1)
	}
	return min(score, keywordMax)
}

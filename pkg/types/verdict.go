package types

// SignalScores are the per-signal scores for one category
type SignalScores struct {
	Path      float64 `json:"path"`
	Keyword   float64 `json:"keyword"`
	Embedding float64 `json:"embedding"`
	Combined  float64 `json:"combined"`
}

// Verdict is the classification outcome for one document. Verdicts are
// returned to the caller and never persisted by the engine.
type Verdict struct {
	Path        string                    `json:"path"`
	Category    Category                  `json:"category"`
	Confidence  float64                   `json:"confidence"`
	Signals     SignalScores              `json:"signals"`
	Scores      map[Category]SignalScores `json:"scores,omitempty"`
	TargetDir   string                    `json:"target_dir"`
	Ambiguous   bool                      `json:"ambiguous"`
	RunnerUp    Category                  `json:"runner_up,omitempty"`
	DuplicateOf string                    `json:"duplicate_of,omitempty"`
	Similarity  float64                   `json:"duplicate_similarity,omitempty"`
}

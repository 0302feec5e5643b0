// Package classifier routes unstructured documents into the knowledge
// categories during a bootstrap of a messy docs repository.
//
// Three independent signals are computed for every (document, category)
// pair:
//
//   - path: the directory part of the path names the category (1.0), or only
//     the file name does (0.6)
//   - keyword: groups of stemmed phrases found in the preview, analyzed with
//     bleve's English analyzer
//   - embedding: cosine similarity between the preview and a canonical
//     description of the category, embedded once per model
//
// The combined score is a weighted sum (0.45 path, 0.25 keyword, 0.30
// embedding by default). The highest score wins and ties go to the stronger
// path signal. A winner less than AmbiguityMargin ahead of the runner-up is
// marked ambiguous instead of being silently assigned, and a best score
// below FallbackThreshold yields the docs category.
//
// Near-duplicates are found with an HNSW graph over the preview embeddings
// and confirmed by exact cosine similarity.
//
// Nothing in this package writes to the docs tree. Bootstrap returns a Plan
// of actions the caller may choose to execute.
package classifier

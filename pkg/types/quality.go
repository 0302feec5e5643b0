package types

// Severity grades a quality issue
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is one finding of the quality gate
type Issue struct {
	Severity Severity `json:"severity"`
	File     string   `json:"file"`
	Message  string   `json:"message"`
}

// IssueCounts aggregates issues per severity
type IssueCounts struct {
	Critical int `json:"critical"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// Add counts one issue
func (c *IssueCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityWarning:
		c.Warnings++
	case SeverityInfo:
		c.Info++
	}
}

// Merge adds other into c
func (c *IssueCounts) Merge(other IssueCounts) {
	c.Critical += other.Critical
	c.Warnings += other.Warnings
	c.Info += other.Info
}

// CountIssues tallies a slice of issues
func CountIssues(issues []Issue) IssueCounts {
	var counts IssueCounts
	for _, issue := range issues {
		counts.Add(issue.Severity)
	}
	return counts
}

// HasCritical reports whether any issue blocks indexing
func HasCritical(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

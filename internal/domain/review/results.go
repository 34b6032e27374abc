package review

import "strings"

// Issue types the reviewer may report. Bug and security findings count as
// critical in the summary.
const (
	IssueTypeBug          = "bug"
	IssueTypeStyle        = "style"
	IssueTypePerformance  = "performance"
	IssueTypeSecurity     = "security"
	IssueTypeBestPractice = "best_practice"
)

// Issue is a single finding the reviewer raised against a file.
type Issue struct {
	Type        string `json:"type"`
	Line        *int   `json:"line,omitempty"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// IsCritical reports whether this issue counts toward the critical total.
func (i Issue) IsCritical() bool {
	return i.Type == IssueTypeBug || i.Type == IssueTypeSecurity
}

// FileResult groups the issues found in one reviewed file.
type FileResult struct {
	Name   string  `json:"name"`
	Issues []Issue `json:"issues"`
}

// Summary aggregates counts across all reviewed files.
type Summary struct {
	TotalFiles     int `json:"total_files"`
	TotalIssues    int `json:"total_issues"`
	CriticalIssues int `json:"critical_issues"`
}

// ReviewResults is the structured findings report produced by the reviewer.
type ReviewResults struct {
	Files   []FileResult `json:"files"`
	Summary Summary      `json:"summary"`
}

// Recount recomputes the summary from the per-file findings. The reviewer's
// own counting is not trusted.
func (r *ReviewResults) Recount() {
	r.Summary = Summary{TotalFiles: len(r.Files)}
	for _, f := range r.Files {
		r.Summary.TotalIssues += len(f.Issues)
		for _, issue := range f.Issues {
			if issue.IsCritical() {
				r.Summary.CriticalIssues++
			}
		}
	}
}

// PRInfo carries the change request's descriptive metadata into the review.
type PRInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FileChange is the normalized per-file review input: filename, language
// inferred from the filename extension, and the unified diff text.
type FileChange struct {
	Filename string `json:"filename"`
	Language string `json:"language"`
	Diff     string `json:"diff"`
}

// ReviewInput is the normalized structure handed to the reviewer.
type ReviewInput struct {
	PRInfo      PRInfo       `json:"pr_info"`
	CodeChanges []FileChange `json:"code_changes"`
}

// ResultPayload is the durable result document stored for a completed task.
// Review is nil when the reviewer failed; the surrounding metadata is still
// considered a successful result.
type ResultPayload struct {
	PRInfo      PRInfo         `json:"pr_info"`
	CodeChanges []FileChange   `json:"code_changes"`
	Review      *ReviewResults `json:"ai_review"`
}

// ChangeMetadata is what the external data fetcher returns about the change
// request itself.
type ChangeMetadata struct {
	Title       string
	Description string
	Author      string
}

// ChangedFile is one modified file as reported by the external data fetcher.
// Patch may be empty when the hosting service omits the diff.
type ChangedFile struct {
	Filename  string
	Additions int
	Deletions int
	Patch     string
}

// LanguageForFilename infers a language tag from a filename extension.
// Filenames without an extension map to "unknown".
func LanguageForFilename(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "unknown"
	}
	return name[idx+1:]
}

// BuildReviewInput normalizes fetched change data into reviewer input.
// Missing diffs default to the empty string.
func BuildReviewInput(meta ChangeMetadata, files []ChangedFile) ReviewInput {
	changes := make([]FileChange, 0, len(files))
	for _, f := range files {
		changes = append(changes, FileChange{
			Filename: f.Filename,
			Language: LanguageForFilename(f.Filename),
			Diff:     f.Patch,
		})
	}

	return ReviewInput{
		PRInfo:      PRInfo{Title: meta.Title, Description: meta.Description},
		CodeChanges: changes,
	}
}

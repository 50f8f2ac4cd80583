package manspider

// Finding is a file reported for a host, either a FileEntry
// found by extension or a CredMatch found by content.
type Finding interface {
	FindingPath() string
	isFinding()
}

// FileEntry is a file matched by its extension.
type FileEntry struct {
	Path string `json:"path"`
	Size string `json:"size"`
}

func (f FileEntry) FindingPath() string { return f.Path }
func (FileEntry) isFinding()            {}

// KeywordMatch is a single `matched "keyword" N times` report. Count stays
// textual, as manspider's output is not guaranteed to carry a number.
type KeywordMatch struct {
	Keyword string `json:"keyword"`
	Count   string `json:"count"`
}

// CredMatch is a file whose content matched at least one keyword, with
// up to MaxSnippets lines of the matched content.
type CredMatch struct {
	Path     string         `json:"path"`
	Matches  []KeywordMatch `json:"matches"`
	Snippets []string       `json:"code_snippets"`
}

func (c CredMatch) FindingPath() string { return c.Path }
func (CredMatch) isFinding()            {}

// HostResult are the findings on a host that manspider logged in to.
type HostResult struct {
	IP    string    `json:"ip"`
	Files []Finding `json:"files"`
}

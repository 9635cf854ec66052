package domain

// EntryType discriminates metadata entry variants. Closed set; unknown types
// are skipped during display projection.
type EntryType string

const (
	EntryPath     EntryType = "path"
	EntryJSON     EntryType = "json"
	EntryURL      EntryType = "url"
	EntryText     EntryType = "text"
	EntryMarkdown EntryType = "markdown"
	EntryCodeRef  EntryType = "code_ref"
)

// MetadataEntry is a labelled piece of structured metadata attached to a
// materialization or expectation result. Exactly one variant field is
// populated, selected by Type.
type MetadataEntry struct {
	Type        EntryType `json:"type"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Path        string    `json:"path,omitempty"`
	JSONString  string    `json:"json_string,omitempty"`
	URL         string    `json:"url,omitempty"`
	Text        string    `json:"text,omitempty"`
	Markdown    string    `json:"md_str,omitempty"`
	Module      string    `json:"module,omitempty"`
	Name        string    `json:"name,omitempty"`
}

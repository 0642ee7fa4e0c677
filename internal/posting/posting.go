package posting

// Posting is the canonical shape every discovery source produces. Sources
// normalize their raw records into this struct at the boundary; nothing
// downstream branches on source-specific fields.
type Posting struct {
	Title        string `json:"title" mapstructure:"title"`
	Employer     string `json:"employer" mapstructure:"employer"`
	LocationText string `json:"location,omitempty" mapstructure:"location"`
	IsRemote     bool   `json:"is_remote,omitempty" mapstructure:"is_remote"`
	URL          string `json:"url,omitempty" mapstructure:"url"`
	Description  string `json:"description,omitempty" mapstructure:"description"`
	PostedAt     string `json:"posted_at,omitempty" mapstructure:"posted_at"`

	// Source names the discovery collaborator that produced the posting,
	// SourceQuery the search query (or board) it came from.
	Source      string `json:"source" mapstructure:"source"`
	SourceQuery string `json:"source_query,omitempty" mapstructure:"source_query"`
}

type Postings struct {
	Items []*Posting
}

func (p *Postings) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

func (p *Postings) Append(items ...*Posting) {
	p.Items = append(p.Items, items...)
}

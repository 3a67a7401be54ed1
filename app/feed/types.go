package feed

// Metadata describes the channel of a parsed feed.
type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Subscription is a feed seeded from the feeds directory
type Subscription struct {
	Name    string `yaml:"-"` // Derived from filename (without .yml extension)
	URL     string `yaml:"url"`
	Title   string `yaml:"title"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled treats a missing enabled key as enabled
func (s Subscription) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DisplayName is the title when set, otherwise the file name
func (s Subscription) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

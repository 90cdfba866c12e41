package social

import "time"

// ContentItem is one normalized post from a provider's content feed. Items
// are transient: the subsystem hands them to the caller and persists nothing.
type ContentItem struct {
	Provider     string         `json:"provider"`
	ID           string         `json:"id"`
	Text         string         `json:"text,omitempty"`
	PostedAt     time.Time      `json:"posted_at,omitempty"`
	Metrics      map[string]int `json:"metrics,omitempty"`
	MediaType    string         `json:"media_type,omitempty"`
	MediaURL     string         `json:"media_url,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Permalink    string         `json:"permalink,omitempty"`
}

// ContentRequest asks a provider adapter for one page of recent content.
type ContentRequest struct {
	// Cursor is the provider-native pagination token, empty for the first page.
	Cursor string
	// Limit is the desired number of items for this page. Adapters clamp it
	// to the provider's allowed page size.
	Limit int
}

// ContentPage is one page of normalized content plus the cursor for the next
// page, empty when the feed is exhausted.
type ContentPage struct {
	Items      []ContentItem
	NextCursor string
}

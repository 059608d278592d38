package model

// Page holds raw content fetched for one source URL.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	HTML       string `json:"html,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

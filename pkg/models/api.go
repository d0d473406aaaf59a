package models

// MessageResponse is the body of successful update and delete calls
type MessageResponse struct {
	Message string `json:"message"`
}

// UploadResponse is returned by POST /upload
type UploadResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// ValidationErrorResponse is the 422 body, keyed by field name
type ValidationErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// PageLink is one entry of the paginator's links list
type PageLink struct {
	URL    *string `json:"url"`
	Label  string  `json:"label"`
	Active bool    `json:"active"`
}

// Paginated is the length-aware pagination envelope returned by list endpoints
type Paginated[T any] struct {
	CurrentPage  int        `json:"current_page"`
	Data         []T        `json:"data"`
	FirstPageURL string     `json:"first_page_url"`
	From         *int       `json:"from"`
	LastPage     int        `json:"last_page"`
	LastPageURL  string     `json:"last_page_url"`
	Links        []PageLink `json:"links"`
	NextPageURL  *string    `json:"next_page_url"`
	Path         string     `json:"path"`
	PerPage      int        `json:"per_page"`
	PrevPageURL  *string    `json:"prev_page_url"`
	To           *int       `json:"to"`
	Total        int64      `json:"total"`
}

package models

// APIResponse is the envelope of every HTTP response.
type APIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PageRequest selects an offset page.
type PageRequest struct {
	Page   int
	Size   int
	SortBy string
}

// PageResponse is an offset page.
type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	PageNo        int   `json:"pageNo"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Last          bool  `json:"last"`
}

// NewPageResponse fills the derived fields of an offset page.
func NewPageResponse[T any](content []T, req PageRequest, total int64) PageResponse[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return PageResponse[T]{
		Content:       content,
		PageNo:        req.Page,
		PageSize:      req.Size,
		TotalElements: total,
		TotalPages:    pages,
		Last:          req.Page+1 >= pages,
	}
}

// CursorPage is a keyset page. NextCursor is nil when the page is empty.
type CursorPage[T any] struct {
	Content    []T     `json:"content"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

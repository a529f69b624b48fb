package pagination

const (
	// DefaultPerPage is the page size used when none is configured.
	DefaultPerPage = 10
	// MaxPerPage caps how many rows a page query can request.
	MaxPerPage = 100
)

// Page holds page-number pagination inputs.
type Page struct {
	Number  int
	PerPage int
}

// Meta describes the returned page to clients.
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPage normalizes the requested page number and size.
func NewPage(number, perPage int) Page {
	if number < 1 {
		number = 1
	}
	return Page{Number: number, PerPage: NormalizePerPage(perPage)}
}

// NormalizePerPage enforces the default and maximum page sizes.
func NormalizePerPage(perPage int) int {
	if perPage <= 0 {
		return DefaultPerPage
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// MetaFor builds the page metadata for a total row count.
func (p Page) MetaFor(total int64) Meta {
	pages := 0
	if total > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return Meta{
		Page:       p.Number,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: pages,
	}
}

package humastar

import "fmt"

// Pager is implemented by bodies that add first/prev/next/last links.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is one offset/limit page of a listing.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Paginate converts the items of one page with fn. An offset past the end
// yields an empty page that still reports the total.
func Paginate[S, T any](items []S, offset, limit int, fn func(S) T) PageBody[T] {
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}
	p := PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: []T{}}
	for i := offset; i < len(items) && i < offset+limit; i++ {
		p.Data = append(p.Data, fn(items[i]))
	}
	return p
}

// PaginationLinks returns Link header values relative to basePath. first
// and last are always present; an empty listing's last page is offset 0.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit < 1 {
		return nil
	}
	last := 0
	if p.Total > 0 {
		last = (p.Total - 1) / p.Limit * p.Limit
	}
	links := []string{p.link(basePath, 0, "first")}
	if p.Offset > 0 {
		links = append(links, p.link(basePath, max(p.Offset-p.Limit, 0), "prev"))
	}
	if next := p.Offset + p.Limit; next < p.Total {
		links = append(links, p.link(basePath, next, "next"))
	}
	return append(links, p.link(basePath, last, "last"))
}

func (p PageBody[T]) link(base string, offset int, rel string) string {
	return fmt.Sprintf("<%s?offset=%d&limit=%d>; rel=%q", base, offset, p.Limit, rel)
}

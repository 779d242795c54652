package humastar

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Links derives navigation Link headers from the registered routes. The
// entry point lists every GET collection, an item links to its collection
// and a nested resource links up to its nearest registered parent. Hrefs
// keep their {param} templates and are expanded per request.
type Links struct {
	// Entry is the path treated as the API entry point.
	Entry string
	// Skip lists tags whose operations get no generated links, such as
	// Datastar SSE endpoints.
	Skip []string

	byPath map[string][]link
}

type link struct {
	href string
	rel  string
}

func (k link) header() string {
	return fmt.Sprintf("<%s>; rel=%q", k.href, k.rel)
}

// NewLinks creates an empty link table rooted at entry.
func NewLinks(entry string, skip ...string) *Links {
	return &Links{Entry: entry, Skip: skip, byPath: map[string][]link{}}
}

// For returns the unexpanded Link header values for an operation path.
func (l *Links) For(p string) []string {
	links := l.byPath[p]
	if len(links) == 0 {
		return nil
	}
	out := make([]string, len(links))
	for i, k := range links {
		out[i] = k.header()
	}
	return out
}

// Root returns the entry point's Link headers, for non-Huma handlers
// serving the site root.
func (l *Links) Root() []string {
	return l.For(l.Entry)
}

// Build rebuilds the table from api's routes. Call after all routes are
// registered.
func (l *Links) Build(api huma.API) {
	paths := api.OpenAPI().Paths
	l.byPath = map[string][]link{}

	keys := make([]string, 0, len(paths))
	for p, pi := range paths {
		if !skipped(primaryTags(pi), l.Skip) {
			keys = append(keys, p)
		}
	}
	sort.Strings(keys)

	for _, p := range keys {
		if p == l.Entry {
			continue
		}
		if !templated(p) && paths[p].Get != nil {
			l.add(l.Entry, p, path.Base(p))
		}
		if parent := parentOf(p, paths); parent != "" {
			rel := "up"
			if !templated(parent) && templated(path.Base(p)) {
				rel = "collection"
			}
			l.add(p, parent, rel)
		}
	}
	l.add(l.Entry, "/openapi.json", "service-desc")
	l.add(l.Entry, "/docs", "service-doc")
}

// Transformer returns a Huma Transformer that writes the generated links,
// a self link for templated routes, pagination links and body actions.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, k := range l.byPath[op.Path] {
			ctx.AppendHeader("Link", link{expand(k.href, ctx.Param), k.rel}.header())
		}
		if templated(op.Path) {
			ctx.AppendHeader("Link", link{ctx.URL().Path, "self"}.header())
		}
		if p, ok := v.(Pager); ok {
			for _, h := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", h)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func (l *Links) add(from, href, rel string) {
	k := link{href, rel}
	for _, existing := range l.byPath[from] {
		if existing == k {
			return
		}
	}
	l.byPath[from] = append(l.byPath[from], k)
}

// parentOf walks up p until it reaches a registered path.
func parentOf(p string, paths map[string]*huma.PathItem) string {
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := paths[dir]; ok {
			return dir
		}
	}
	return ""
}

// expand substitutes {name} segments with param(name).
func expand(href string, param func(string) string) string {
	var b strings.Builder
	for {
		i := strings.IndexByte(href, '{')
		j := strings.IndexByte(href, '}')
		if i < 0 || j < i {
			break
		}
		b.WriteString(href[:i])
		b.WriteString(url.PathEscape(param(href[i+1 : j])))
		href = href[j+1:]
	}
	b.WriteString(href)
	return b.String()
}

func templated(p string) bool {
	return strings.Contains(p, "{")
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func skipped(tags, skip []string) bool {
	for _, t := range tags {
		for _, s := range skip {
			if t == s {
				return true
			}
		}
	}
	return false
}

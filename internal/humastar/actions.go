package humastar

import (
	"fmt"
	"net/http"
	"strings"
)

// Rels offered by session and marker responses.
const (
	RelEvents      = "events"
	RelClose       = "close"
	RelResolve     = "resolve"
	RelComplete    = "complete"
	RelUncomplete  = "uncomplete"
	RelPermalink   = "permalink"
	RelClearActive = "clear-active"
)

// Action is a link whose presence depends on resource state, e.g. resolve
// is only offered while a completion conflict is pending. It renders as
//
//	</api/v1/sessions/s1/completion/resolve>; rel="resolve"; method="POST"; title="Resolve"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// Actor is implemented by response bodies that offer actions.
type Actor interface {
	Actions() []Action
}

// Get returns a GET action.
func Get(rel, href, title string) Action { return Action{rel, href, http.MethodGet, title} }

// Post returns a POST action.
func Post(rel, href, title string) Action { return Action{rel, href, http.MethodPost, title} }

// Put returns a PUT action.
func Put(rel, href, title string) Action { return Action{rel, href, http.MethodPut, title} }

// Delete returns a DELETE action.
func Delete(rel, href, title string) Action { return Action{rel, href, http.MethodDelete, title} }

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>; rel=%q", a.Href, a.Rel)
	if a.Method != "" {
		fmt.Fprintf(&b, "; method=%q", a.Method)
	}
	if a.Title != "" {
		fmt.Fprintf(&b, "; title=%q", a.Title)
	}
	return b.String()
}

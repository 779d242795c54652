package api

import (
	"bytes"
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wikimap/internal/humastar"
	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/service"
	"github.com/joeblew999/plat-wikimap/internal/templates"
)

// EventHandler streams session changes to the Datastar UI via SSE.
type EventHandler struct {
	humastar.Handler
	sessions *service.SessionService
}

// NewEventHandler creates a new event handler.
func NewEventHandler(sessions *service.SessionService, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
	}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/events", h.Events,
		huma.OperationTags("sse"),
	)
	huma.Post(api, "/api/v1/sessions/{id}/search/results", h.SearchResults,
		huma.OperationTags("sse"),
	)
}

// SessionSignalsInput carries a session path and Datastar signals.
type SessionSignalsInput struct {
	SessionInput
	humastar.SignalsInput
}

// statusData feeds the session-status fragment.
type statusData struct {
	SessionBody
	Choices []string
}

// rowData feeds the marker-row fragment.
type rowData struct {
	MarkerBody
	Session   string
	LayerName string
	Permalink string
}

func (h *EventHandler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	sess, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := h.sessions.Bus().Subscribe()
			defer h.sessions.Bus().Unsubscribe(ch)

			sse.Patch(h.status(sess), "#session-status")
			for {
				select {
				case <-humaCtx.Context().Done():
					return
				case ev := <-ch:
					if ev.Session != sess.ID {
						continue
					}
					var buf bytes.Buffer
					h.Renderer.RenderToBuffer(&buf, "event", ev)
					sse.Append(buf.String(), "#session-events")
					switch ev.Kind {
					case service.KindCompleted, service.KindUncompleted, service.KindConflict, service.KindNotice:
						sse.Patch(h.status(sess), "#session-status")
					case service.KindClosed:
						sse.Signals(map[string]any{"closed": true})
						return
					}
					sse.DispatchCustomEvent("marker-changed", map[string]any{
						"type": ev.Kind,
						"key":  ev.Key,
					})
				}
			}
		},
	}, nil
}

func (h *EventHandler) status(sess *service.Session) string {
	out, err := h.Renderer.Render("session-status", statusData{
		SessionBody: sessionBody(sess),
		Choices:     []string{"merge", "replace", "discard"},
	})
	if err != nil {
		return ""
	}
	return out
}

// SearchResults renders the search signal's matches as marker rows.
func (h *EventHandler) SearchResults(ctx context.Context, input *SessionSignalsInput) (*huma.StreamResponse, error) {
	sess, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	q := signals.String("search")

	var rows []any
	sess.Do(func(m *markers.Map) error {
		body := searchGroups(m, q)
		for _, g := range body.Groups {
			for _, mk := range g.Markers {
				rows = append(rows, rowData{
					MarkerBody: mk,
					Session:    sess.ID,
					LayerName:  g.Name,
					Permalink:  "?marker=" + mk.Key,
				})
			}
		}
		return nil
	})

	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.RenderList("marker-row", rows, "No markers found", "Type at least three letters of a marker name"), "#search-results")
		sse.Signals(map[string]any{"resultCount": len(rows)})
	}), nil
}

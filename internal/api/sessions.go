package api

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wikimap/internal/completion"
	"github.com/joeblew999/plat-wikimap/internal/humastar"
	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/service"
)

type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type CreateSessionInput struct {
	Body struct {
		Map  string `json:"map" doc:"Map to open" example:"overworld"`
		User string `json:"user,omitempty" doc:"User whose progress is loaded" example:"link"`
	}
}

// SessionBody is the state of one viewer session.
type SessionBody struct {
	ID        string               `json:"id" doc:"Session ID"`
	User      string               `json:"user" doc:"Owning user"`
	Map       string               `json:"map" doc:"Map ID"`
	MapName   string               `json:"mapName" doc:"Map display name"`
	Created   time.Time            `json:"created" doc:"Creation time"`
	Zoom      int                  `json:"zoom" doc:"Current zoom level"`
	Shown     int                  `json:"shown" doc:"Markers currently shown"`
	Completed int                  `json:"completed" doc:"Markers tagged completed"`
	Active    string               `json:"active,omitempty" doc:"Permalinked marker key"`
	Notice    string               `json:"notice,omitempty" doc:"Storage notice"`
	Conflict  *completion.Conflict `json:"conflict,omitempty" doc:"Pending completion conflict"`
}

// Actions implements humastar.Actor.
func (b SessionBody) Actions() []humastar.Action {
	actions := []humastar.Action{
		humastar.Get(humastar.RelEvents, sessionPath(b.ID, "events"), "Stream session events"),
		humastar.Delete(humastar.RelClose, sessionPath(b.ID), "Close session"),
	}
	if b.Active != "" {
		actions = append(actions, humastar.Delete(humastar.RelClearActive, sessionPath(b.ID, "active"), "Clear permalink"))
	}
	if b.Conflict != nil {
		actions = append(actions, humastar.Post(humastar.RelResolve, sessionPath(b.ID, "completion", "resolve"), "Resolve completion conflict"))
	}
	return actions
}

// sessionPath joins parts under a session's URL.
func sessionPath(id string, parts ...string) string {
	return path.Join(append([]string{"/api/v1/sessions", id}, parts...)...)
}

type SessionOutput struct {
	Body SessionBody
}

type ViewportInput struct {
	SessionInput
	Body service.Viewport
}

type VisibilityBody struct {
	Visible bool `json:"visible" doc:"Whether the filter is on"`
}

// ToggleBody reports a visibility change.
type ToggleBody struct {
	Visible bool `json:"visible" doc:"New flag value"`
	Changed int  `json:"changed" doc:"Markers whose shown state flipped"`
}

type LayerVisibilityInput struct {
	SessionInput
	Layer string `path:"layer" doc:"Layer ID"`
	Body  VisibilityBody
}

type CategoryVisibilityInput struct {
	SessionInput
	Category string `path:"category" doc:"Category name"`
	Body     VisibilityBody
}

type TagVisibilityInput struct {
	SessionInput
	Tag  string `path:"tag" doc:"Tag name" example:"Completed"`
	Body VisibilityBody
}

type TagInput struct {
	SessionInput
	Tag string `path:"tag" doc:"Tag name" example:"Completed"`
}

type MarkerInput struct {
	SessionInput
	Layer  string `path:"layer" doc:"Layer ID"`
	Marker string `path:"marker" doc:"Marker ID"`
}

// CompletionBody is the completed state of one marker.
type CompletionBody struct {
	Key       string `json:"key" doc:"Marker key"`
	Completed bool   `json:"completed" doc:"Whether the marker is completed"`
	Changed   bool   `json:"changed" doc:"Whether the request changed it"`
}

type KeysBody struct {
	Keys []string `json:"keys" doc:"Marker keys"`
}

type ResolveInput struct {
	SessionInput
	Body struct {
		Choice string `json:"choice" enum:"merge,replace,discard" doc:"merge keeps both, replace keeps local, discard keeps account"`
	}
}

// RegisterSessions registers session lifecycle and state routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        "POST",
		Path:          "/api/v1/sessions",
		Summary:       "Open a map session",
		Tags:          []string{"sessions"},
		DefaultStatus: 201,
	}, h.CreateSession)
	huma.Get(api, "/api/v1/sessions", h.GetSessions, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))

	huma.Post(api, "/api/v1/sessions/{id}/viewport", h.PostViewport, huma.OperationTags("viewport"))

	huma.Put(api, "/api/v1/sessions/{id}/layers/{layer}/visibility", h.PutLayerVisibility, huma.OperationTags("filters"))
	huma.Put(api, "/api/v1/sessions/{id}/categories/{category}/visibility", h.PutCategoryVisibility, huma.OperationTags("filters"))
	huma.Put(api, "/api/v1/sessions/{id}/tags/{tag}/visibility", h.PutTagVisibility, huma.OperationTags("filters"))
	huma.Delete(api, "/api/v1/sessions/{id}/tags/{tag}", h.ClearTag, huma.OperationTags("filters"))

	huma.Get(api, "/api/v1/sessions/{id}/completed", h.GetCompleted, huma.OperationTags("completion"))
	huma.Put(api, "/api/v1/sessions/{id}/completed/{layer}/{marker}", h.PutCompleted, huma.OperationTags("completion"))
	huma.Delete(api, "/api/v1/sessions/{id}/completed/{layer}/{marker}", h.DeleteCompleted, huma.OperationTags("completion"))
	huma.Post(api, "/api/v1/sessions/{id}/completion/resolve", h.ResolveCompletion, huma.OperationTags("completion"))
}

func (h *APIHandler) session(id string) (*service.Session, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	sess, err := h.svc.Sessions.Get(id)
	if err != nil {
		return nil, httpError(err)
	}
	return sess, nil
}

func sessionBody(sess *service.Session) SessionBody {
	b := SessionBody{
		ID:       sess.ID,
		User:     sess.User,
		Map:      sess.MapID,
		Created:  sess.Created,
		Notice:   sess.Notice(),
		Conflict: sess.Conflict(),
	}
	sess.Do(func(m *markers.Map) error {
		b.MapName = m.Name()
		b.Zoom = m.Zoom()
		b.Shown = len(m.Visible())
		b.Completed = len(m.Completed())
		b.Active = m.Permalink()
		return nil
	})
	return b
}

func (h *APIHandler) CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	sess, err := h.svc.Sessions.Create(ctx, input.Body.User, input.Body.Map)
	if err != nil {
		return nil, httpError(err)
	}
	return &SessionOutput{Body: sessionBody(sess)}, nil
}

func (h *APIHandler) GetSessions(ctx context.Context, input *struct{}) (*struct{ Body []SessionBody }, error) {
	out := []SessionBody{}
	if h.svc != nil && h.svc.Sessions != nil {
		for _, sess := range h.svc.Sessions.List() {
			out = append(out, sessionBody(sess))
		}
	}
	return &struct{ Body []SessionBody }{Body: out}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sessionBody(sess)}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{ Body MessageBody }, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	if err := h.svc.Sessions.Close(input.ID); err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session closed"}}, nil
}

func (h *APIHandler) PostViewport(ctx context.Context, input *ViewportInput) (*struct{ Body service.ViewportResult }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	res, err := sess.ApplyViewport(input.Body)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body service.ViewportResult }{Body: res}, nil
}

// toggle runs a visibility setter and reports 404 when its target is unknown.
func (h *APIHandler) toggle(id, what, name string, on bool, set func(m *markers.Map) (int, bool)) (*struct{ Body ToggleBody }, error) {
	sess, err := h.session(id)
	if err != nil {
		return nil, err
	}
	var changed int
	var ok bool
	sess.Do(func(m *markers.Map) error {
		changed, ok = set(m)
		return nil
	})
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("%s %q not found", what, name))
	}
	return &struct{ Body ToggleBody }{Body: ToggleBody{Visible: on, Changed: changed}}, nil
}

func (h *APIHandler) PutLayerVisibility(ctx context.Context, input *LayerVisibilityInput) (*struct{ Body ToggleBody }, error) {
	on := input.Body.Visible
	return h.toggle(input.ID, "layer", input.Layer, on, func(m *markers.Map) (int, bool) {
		return m.SetLayerVisible(input.Layer, on)
	})
}

func (h *APIHandler) PutCategoryVisibility(ctx context.Context, input *CategoryVisibilityInput) (*struct{ Body ToggleBody }, error) {
	on := input.Body.Visible
	return h.toggle(input.ID, "category", input.Category, on, func(m *markers.Map) (int, bool) {
		return m.SetCategoryVisible(input.Category, on)
	})
}

func (h *APIHandler) PutTagVisibility(ctx context.Context, input *TagVisibilityInput) (*struct{ Body ToggleBody }, error) {
	on := input.Body.Visible
	return h.toggle(input.ID, "tag", input.Tag, on, func(m *markers.Map) (int, bool) {
		return m.SetTagVisible(input.Tag, on)
	})
}

func (h *APIHandler) ClearTag(ctx context.Context, input *TagInput) (*struct{ Body ToggleBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var body ToggleBody
	var ok bool
	sess.Do(func(m *markers.Map) error {
		body.Changed, ok = m.ClearTag(input.Tag)
		if ok {
			body.Visible = m.Tag(input.Tag).Visible()
		}
		return nil
	})
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("tag %q not found", input.Tag))
	}
	return &struct{ Body ToggleBody }{Body: body}, nil
}

func (h *APIHandler) GetCompleted(ctx context.Context, input *SessionInput) (*struct{ Body KeysBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var keys []string
	sess.Do(func(m *markers.Map) error {
		keys = m.Completed()
		return nil
	})
	return &struct{ Body KeysBody }{Body: KeysBody{Keys: keys}}, nil
}

func (h *APIHandler) setCompleted(input *MarkerInput, completed bool) (*struct{ Body CompletionBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	key := markers.MarkerKey(input.Layer, input.Marker)
	body := CompletionBody{Key: key, Completed: completed}
	err = sess.Do(func(m *markers.Map) error {
		if m.Find(key) == nil {
			return huma.Error404NotFound(fmt.Sprintf("marker %q not found", key))
		}
		if completed {
			body.Changed = m.MarkComplete(key)
		} else {
			body.Changed = m.MarkIncomplete(key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body CompletionBody }{Body: body}, nil
}

func (h *APIHandler) PutCompleted(ctx context.Context, input *MarkerInput) (*struct{ Body CompletionBody }, error) {
	return h.setCompleted(input, true)
}

func (h *APIHandler) DeleteCompleted(ctx context.Context, input *MarkerInput) (*struct{ Body CompletionBody }, error) {
	return h.setCompleted(input, false)
}

func (h *APIHandler) ResolveCompletion(ctx context.Context, input *ResolveInput) (*struct{ Body KeysBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	choice, err := completion.ParseChoice(input.Body.Choice)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	keys, err := sess.Resolve(ctx, choice)
	if errors.Is(err, completion.ErrNoConflict) {
		return nil, huma.Error409Conflict(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("resolving completion", err)
	}
	return &struct{ Body KeysBody }{Body: KeysBody{Keys: keys}}, nil
}

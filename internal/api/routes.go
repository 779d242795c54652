// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Maps     *service.MapService
	Sessions *service.SessionService
}

// Types

type MapInput struct {
	Map string `path:"map" doc:"Map ID" example:"overworld"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// MapDetail is a map definition without its markers.
type MapDetail struct {
	ID         string         `json:"id" doc:"Map identifier"`
	Name       string         `json:"name" doc:"Display name"`
	MaxZoom    int            `json:"maxZoom" doc:"Deepest zoom level"`
	TileSize   float64        `json:"tileSize" doc:"Zoom-0 tile size in pixels"`
	Bounds     [2][2]float64  `json:"bounds" doc:"World bound [[minX,minY],[maxX,maxY]]"`
	Tags       []string       `json:"tags" doc:"Declared tag sets"`
	Categories []CategoryBody `json:"categories" doc:"Marker categories"`
}

type CategoryBody struct {
	Name   string      `json:"name" doc:"Category name"`
	Layers []LayerBody `json:"layers" doc:"Layers in this category"`
}

type LayerBody struct {
	ID      string `json:"id" doc:"Layer identifier"`
	Name    string `json:"name" doc:"Display name"`
	MinZoom int    `json:"minZoom,omitempty" doc:"Label-only below this zoom"`
	Markers int    `json:"markers" doc:"Number of markers"`
	Visible bool   `json:"visible" doc:"Whether the layer filter is on"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterMaps registers map definition routes.
func (h *APIHandler) RegisterMaps(api huma.API) {
	huma.Get(api, "/api/v1/maps", h.GetMaps, huma.OperationTags("maps"))
	huma.Post(api, "/api/v1/maps/reload", h.ReloadMaps, huma.OperationTags("maps"))
	huma.Get(api, "/api/v1/maps/{map}", h.GetMap, huma.OperationTags("maps"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetMaps(ctx context.Context, input *struct{}) (*struct{ Body []service.MapFile }, error) {
	if h.svc == nil || h.svc.Maps == nil {
		return &struct{ Body []service.MapFile }{Body: []service.MapFile{}}, nil
	}
	return &struct{ Body []service.MapFile }{Body: h.svc.Maps.List()}, nil
}

// ReloadBody reports a maps directory rescan.
type ReloadBody struct {
	Maps   int      `json:"maps" doc:"Number of maps loaded"`
	Errors []string `json:"errors" doc:"Files that failed to load"`
}

func (h *APIHandler) ReloadMaps(ctx context.Context, input *struct{}) (*struct{ Body ReloadBody }, error) {
	if h.svc == nil || h.svc.Maps == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	body := ReloadBody{Errors: []string{}}
	if err := h.svc.Maps.Reload(); err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				body.Errors = append(body.Errors, e.Error())
			}
		} else {
			body.Errors = append(body.Errors, err.Error())
		}
	}
	body.Maps = len(h.svc.Maps.List())
	return &struct{ Body ReloadBody }{Body: body}, nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *MapInput) (*struct{ Body MapDetail }, error) {
	if h.svc == nil || h.svc.Maps == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	def, err := h.svc.Maps.Get(input.Map)
	if err != nil {
		return nil, httpError(err)
	}
	// Building the engine resolves defaults and derived layer IDs.
	mp, err := markers.New(def, markers.Options{})
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body MapDetail }{Body: mapDetail(mp)}, nil
}

func mapDetail(mp *markers.Map) MapDetail {
	d := MapDetail{
		ID:       mp.ID(),
		Name:     mp.Name(),
		MaxZoom:  mp.MaxZoom(),
		TileSize: mp.Projection().TileSize,
		Bounds: [2][2]float64{
			{mp.Projection().Bound.Min[0], mp.Projection().Bound.Min[1]},
			{mp.Projection().Bound.Max[0], mp.Projection().Bound.Max[1]},
		},
		Tags:       []string{},
		Categories: []CategoryBody{},
	}
	for _, t := range mp.Tags() {
		d.Tags = append(d.Tags, t.Name())
	}
	for _, c := range mp.Categories() {
		cb := CategoryBody{Name: c.Name(), Layers: []LayerBody{}}
		for _, l := range c.Layers() {
			cb.Layers = append(cb.Layers, LayerBody{
				ID:      l.ID(),
				Name:    l.Name(),
				MinZoom: l.MinZoom(),
				Markers: len(l.Markers()),
				Visible: l.Visible(),
			})
		}
		d.Categories = append(d.Categories, cb)
	}
	return d
}

// httpError maps service errors onto Huma status errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, service.ErrMapNotFound), errors.Is(err, service.ErrSessionNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, markers.ErrInvalidData), errors.Is(err, markers.ErrTileOutOfRange):
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-wikimap/internal/humastar"
	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/markertile"
)

// MarkerBody is one marker as seen by a session.
type MarkerBody struct {
	Key          string        `json:"key" doc:"Map-wide marker key" example:"shrines/a"`
	ID           string        `json:"id" doc:"Marker ID within its layer"`
	Layer        string        `json:"layer" doc:"Layer ID"`
	Name         string        `json:"name" doc:"Display name"`
	Link         string        `json:"link,omitempty" doc:"Wiki page"`
	Point        [2]float64    `json:"point" doc:"World coordinates"`
	Elevation    *float64      `json:"elevation,omitempty" doc:"Optional third coordinate"`
	Path         [][2]float64  `json:"path,omitempty" doc:"Connecting line in world coordinates"`
	Tags         []string      `json:"tags" doc:"Tags carried by the marker"`
	Completed    bool          `json:"completed" doc:"Tagged completed"`
	Shown        bool          `json:"shown" doc:"Currently drawn"`
	Presentation string        `json:"presentation" enum:"icon,label" doc:"How the marker draws at the current zoom"`
	Popup        markers.Popup `json:"popup" doc:"Popup content policy"`
}

func markerBody(m *markers.Marker) MarkerBody {
	b := MarkerBody{
		Key:          m.Key(),
		ID:           m.ID(),
		Layer:        m.LayerID(),
		Name:         m.Name(),
		Link:         m.Link(),
		Point:        [2]float64{m.Point()[0], m.Point()[1]},
		Tags:         m.Tags(),
		Completed:    m.Completed(),
		Shown:        m.Applied(),
		Presentation: m.Presentation().String(),
		Popup:        m.Popup(),
	}
	if e, ok := m.Elevation(); ok {
		b.Elevation = &e
	}
	for _, p := range m.Path() {
		b.Path = append(b.Path, [2]float64{p[0], p[1]})
	}
	return b
}

// MarkerDetail is a single marker with the actions its session offers.
type MarkerDetail struct {
	MarkerBody
	session string
	active  bool
}

// Actions implements humastar.Actor.
func (d MarkerDetail) Actions() []humastar.Action {
	progress := sessionPath(d.session, "completed", d.Layer, d.ID)
	actions := []humastar.Action{
		humastar.Get(humastar.RelPermalink, sessionPath(d.session, "markers", d.Layer, d.ID), "Open "+d.Name),
	}
	if d.Completed {
		actions = append(actions, humastar.Delete(humastar.RelUncomplete, progress, "Mark incomplete"))
	} else {
		actions = append(actions, humastar.Put(humastar.RelComplete, progress, "Mark complete"))
	}
	if d.active {
		actions = append(actions, humastar.Delete(humastar.RelClearActive, sessionPath(d.session, "active"), "Clear permalink"))
	}
	return actions
}

type MarkerListInput struct {
	SessionInput
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Items to skip"`
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
}

type SearchInput struct {
	SessionInput
	Q string `query:"q" doc:"Literal, case-insensitive name fragment" example:"shrine"`
}

type SearchGroup struct {
	Layer   string       `json:"layer" doc:"Layer ID"`
	Name    string       `json:"name" doc:"Layer display name"`
	Markers []MarkerBody `json:"markers" doc:"Matches sorted by name"`
}

type SearchBody struct {
	Query  string        `json:"query" doc:"Search text"`
	Count  int           `json:"count" doc:"Total matches"`
	Groups []SearchGroup `json:"groups" doc:"Matches per layer, in layer order"`
}

type NearestInput struct {
	SessionInput
	X       float64 `query:"x" doc:"World x"`
	Y       float64 `query:"y" doc:"World y"`
	MaxDist float64 `query:"maxDist" default:"10" minimum:"0" doc:"Search radius in world units"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type TileInput struct {
	SessionInput
	Z int `path:"z" doc:"Zoom level"`
	X int `path:"x" doc:"Tile column"`
	Y int `path:"y" doc:"Tile row"`
}

type TileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	Body            []byte
}

// RegisterMarkers registers marker lookup and export routes.
func (h *APIHandler) RegisterMarkers(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/markers", h.GetMarkers, huma.OperationTags("markers"))
	huma.Get(api, "/api/v1/sessions/{id}/markers/{layer}/{marker}", h.GetMarker, huma.OperationTags("markers"))
	huma.Delete(api, "/api/v1/sessions/{id}/active", h.ClearActive, huma.OperationTags("markers"))
	huma.Get(api, "/api/v1/sessions/{id}/search", h.Search, huma.OperationTags("markers"))
	huma.Get(api, "/api/v1/sessions/{id}/nearest", h.Nearest, huma.OperationTags("markers"))
	huma.Get(api, "/api/v1/sessions/{id}/geojson", h.GetGeoJSON, huma.OperationTags("export"))
	huma.Get(api, "/api/v1/sessions/{id}/tiles/{z}/{x}/{y}", h.GetTile, huma.OperationTags("export"))
	huma.Get(api, "/api/v1/sessions/{id}/cells", h.GetCells, huma.OperationTags("export"))
}

// GetMarkers lists the shown markers, paginated.
func (h *APIHandler) GetMarkers(ctx context.Context, input *MarkerListInput) (*struct {
	Body humastar.PageBody[MarkerBody]
}, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var page humastar.PageBody[MarkerBody]
	sess.Do(func(m *markers.Map) error {
		page = humastar.Paginate(m.Visible(), input.Offset, input.Limit, markerBody)
		return nil
	})
	return &struct {
		Body humastar.PageBody[MarkerBody]
	}{Body: page}, nil
}

// GetMarker resolves a permalink and makes the marker active.
func (h *APIHandler) GetMarker(ctx context.Context, input *MarkerInput) (*struct{ Body MarkerDetail }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	key := markers.MarkerKey(input.Layer, input.Marker)
	body := MarkerDetail{session: sess.ID, active: true}
	err = sess.Do(func(m *markers.Map) error {
		mk := m.SetActive(key)
		if mk == nil {
			return huma.Error404NotFound(fmt.Sprintf("marker %q not found", key))
		}
		body.MarkerBody = markerBody(mk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body MarkerDetail }{Body: body}, nil
}

func (h *APIHandler) ClearActive(ctx context.Context, input *SessionInput) (*struct{ Body MessageBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	sess.Do(func(m *markers.Map) error {
		m.ClearActive()
		return nil
	})
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Active marker cleared"}}, nil
}

func searchGroups(m *markers.Map, q string) SearchBody {
	res := m.Search(q)
	body := SearchBody{Query: q, Count: res.Count(), Groups: []SearchGroup{}}
	for _, l := range m.Layers() {
		found := res[l]
		if len(found) == 0 {
			continue
		}
		g := SearchGroup{Layer: l.ID(), Name: l.Name()}
		for _, mk := range found {
			g.Markers = append(g.Markers, markerBody(mk))
		}
		body.Groups = append(body.Groups, g)
	}
	return body
}

func (h *APIHandler) Search(ctx context.Context, input *SearchInput) (*struct{ Body SearchBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var body SearchBody
	sess.Do(func(m *markers.Map) error {
		body = searchGroups(m, input.Q)
		return nil
	})
	return &struct{ Body SearchBody }{Body: body}, nil
}

func (h *APIHandler) Nearest(ctx context.Context, input *NearestInput) (*struct{ Body MarkerDetail }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var mk *markers.Marker
	body := MarkerDetail{session: sess.ID}
	sess.Do(func(m *markers.Map) error {
		if mk = m.Nearest(orb.Point{input.X, input.Y}, input.MaxDist); mk != nil {
			body.MarkerBody = markerBody(mk)
			body.active = m.Active() == mk
		}
		return nil
	})
	if mk == nil {
		return nil, huma.Error404NotFound("no shown marker within range")
	}
	return &struct{ Body MarkerDetail }{Body: body}, nil
}

// CellBody is one loaded tile that holds markers.
type CellBody struct {
	Z     int           `json:"z" doc:"Zoom level"`
	X     int           `json:"x" doc:"Tile column"`
	Y     int           `json:"y" doc:"Tile row"`
	Bound [2][2]float64 `json:"bound" doc:"World area [[minX,minY],[maxX,maxY]]"`
}

// GetCells lists the session's loaded marker cells with their world bounds.
func (h *APIHandler) GetCells(ctx context.Context, input *SessionInput) (*struct{ Body []CellBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	cells := []CellBody{}
	sess.Do(func(m *markers.Map) error {
		for _, t := range m.LoadedCells() {
			b := m.Projection().TileBound(t)
			cells = append(cells, CellBody{
				Z:     int(t.Z),
				X:     int(t.X),
				Y:     int(t.Y),
				Bound: [2][2]float64{{b.Min[0], b.Min[1]}, {b.Max[0], b.Max[1]}},
			})
		}
		return nil
	})
	return &struct{ Body []CellBody }{Body: cells}, nil
}

// GetGeoJSON exports the shown markers in world coordinates.
func (h *APIHandler) GetGeoJSON(ctx context.Context, input *SessionInput) (*GeoJSONOutput, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	sess.Do(func(m *markers.Map) error {
		for _, mk := range m.Visible() {
			var f *geojson.Feature
			if len(mk.Path()) > 0 {
				f = geojson.NewFeature(mk.Path())
			} else {
				f = geojson.NewFeature(mk.Point())
			}
			f.ID = mk.Key()
			f.Properties["name"] = mk.Name()
			f.Properties["layer"] = mk.LayerID()
			f.Properties["completed"] = mk.Completed()
			f.Properties["presentation"] = mk.Presentation().String()
			fc.Append(f)
		}
		return nil
	})
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding geojson", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

// GetTile renders the shown markers of one tile as a gzipped vector tile.
// A tile without markers is 204 No Content.
func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = sess.Do(func(m *markers.Map) error {
		if err := m.CheckTile(input.Z, input.X, input.Y); err != nil {
			return err
		}
		var rerr error
		data, rerr = markertile.Render(m, input.Z, input.X, input.Y)
		return rerr
	})
	if err != nil {
		return nil, httpError(err)
	}
	if data == nil {
		return &TileOutput{Status: http.StatusNoContent}, nil
	}
	return &TileOutput{
		Status:          http.StatusOK,
		ContentType:     "application/vnd.mapbox-vector-tile",
		ContentEncoding: "gzip",
		Body:            data,
	}, nil
}

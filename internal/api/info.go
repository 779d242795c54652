package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	accounts bool
}

func NewInfoHandler(dataDir string, dbOK, accounts bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, accounts: accounts}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether the completion journal is available"`
	Accounts bool     `json:"accounts" doc:"Whether account completion sync is configured"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"markers", "search", "permalinks", "mvt", "geojson", "websocket"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	if h.accounts {
		features = append(features, "redis")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-wikimap",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Accounts: h.accounts,
		Features: features,
	}}, nil
}

package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/panelsmith/panelsmith/internal/schema"
	"github.com/panelsmith/panelsmith/model"
)

type widgetSchemasResponse struct {
	Widgets  []schema.Summary `json:"widgets"`
	Checksum string           `json:"checksum"`
}

// widgetSchemaResponse serves the schema's source document verbatim so user
// overrides keep fields the emitter does not model.
type widgetSchemaResponse struct {
	Type     string          `json:"type"`
	Source   string          `json:"source"`
	Checksum string          `json:"checksum"`
	Schema   json.RawMessage `json:"schema"`
}

func handleListWidgetSchemas(schemas *schema.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, widgetSchemasResponse{
			Widgets:  schemas.List(),
			Checksum: schemas.Checksum(),
		})
	}
}

func handleGetWidgetSchema(schemas *schema.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		widgetType := chi.URLParam(r, "widgetType")
		entry, ok := schemas.Get(widgetType)
		if !ok {
			WriteError(w, r, model.NewNotFoundError("widget schema "+widgetType+" not found"))
			return
		}
		WriteJSON(w, http.StatusOK, widgetSchemaResponse{
			Type:     entry.Type,
			Source:   entry.Source,
			Checksum: entry.Checksum,
			Schema:   entry.Raw,
		})
	}
}

package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/panelsmith/panelsmith/internal/observability"
	"github.com/panelsmith/panelsmith/model"
)

func handleDeployPreview(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := deps.Devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		doc, err := compileDevice(r.Context(), deps, &device)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		preview, err := deps.Deploy.Preview(r.Context(), device.Slug, doc)
		if err != nil {
			recordMergeFailure(deps.Metrics, err)
			WriteError(w, r, err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.RecordDeployPreview(preview.Mode)
		}
		WriteJSON(w, http.StatusOK, preview)
	}
}

func handleDeployExport(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := deps.Devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}

		var req struct {
			ExpectedHash string `json:"expected_hash"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		doc, err := compileDevice(r.Context(), deps, &device)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		result, err := deps.Deploy.Export(r.Context(), device.Slug, doc, strings.TrimSpace(req.ExpectedHash))
		if err != nil {
			recordMergeFailure(deps.Metrics, err)
			if deps.Metrics != nil {
				deps.Metrics.RecordDeploy("none", "error")
			}
			WriteError(w, r, err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.RecordDeploy(result.Mode, "ok")
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// recordMergeFailure counts safe-merge failures by error code. Other error
// kinds pass through uncounted.
func recordMergeFailure(m *observability.Metrics, err error) {
	if m == nil {
		return
	}
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		return
	}
	switch ee.Code {
	case model.ErrMarkerCountMismatch, model.ErrMarkerOrderInvalid,
		model.ErrMarkersMissing, model.ErrExternallyModified:
		m.RecordMergeConflict(ee.Code)
	}
}

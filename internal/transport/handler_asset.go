package transport

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/panelsmith/panelsmith/internal/assets"
	"github.com/panelsmith/panelsmith/model"
)

type assetsResponse struct {
	Assets []model.AssetInfo `json:"assets"`
}

func handleListAssets(store *assets.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if list == nil {
			list = []model.AssetInfo{}
		}
		WriteJSON(w, http.StatusOK, assetsResponse{Assets: list})
	}
}

func handleUploadAsset(store *assets.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name       string `json:"name"`
			DataBase64 string `json:"data_base64"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.DataBase64))
		if err != nil {
			WriteError(w, r, model.NewBadRequestError("data_base64 is not valid base64: "+err.Error()))
			return
		}

		info, err := store.Save(r.Context(), req.Name, data)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, info)
	}
}

func handleDeleteAsset(store *assets.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		// Asset names may contain spaces; valid names never contain '%', so a
		// second decode of an already-decoded segment is a no-op.
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
		if err := store.Delete(r.Context(), name); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/panelsmith/panelsmith/internal/recipe"
	"github.com/panelsmith/panelsmith/internal/store"
	"github.com/panelsmith/panelsmith/model"
)

// deviceSummary is the list-endpoint projection of a device record.
type deviceSummary struct {
	DeviceID         string `json:"device_id"`
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	HardwareRecipeID string `json:"hardware_recipe_id,omitempty"`
	APIKey           string `json:"api_key,omitempty"`
}

type devicesResponse struct {
	Devices []deviceSummary `json:"devices"`
}

type projectResponse struct {
	Project map[string]any `json:"project"`
}

// projectExport is the portable backup document for one device.
type projectExport struct {
	DeviceID         string         `json:"device_id"`
	Slug             string         `json:"slug"`
	Name             string         `json:"name"`
	HardwareRecipeID string         `json:"hardware_recipe_id"`
	APIKey           string         `json:"api_key"`
	Project          map[string]any `json:"project"`
}

type exportResponse struct {
	Export projectExport `json:"export"`
}

// upsertDeviceRequest is the create/update body. Omitted api_key, project,
// and device_settings carry over from an existing record; slug and name
// default from the device id.
type upsertDeviceRequest struct {
	DeviceID         string         `json:"device_id"`
	Slug             string         `json:"slug"`
	Name             string         `json:"name"`
	HardwareRecipeID string         `json:"hardware_recipe_id"`
	APIKey           string         `json:"api_key"`
	DeviceSettings   map[string]any `json:"device_settings"`
	Project          map[string]any `json:"project"`
}

func handleListDevices(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := devices.List(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		out := make([]deviceSummary, 0, len(list))
		for _, d := range list {
			out = append(out, deviceSummary{
				DeviceID:         d.DeviceID,
				Slug:             d.Slug,
				Name:             d.Name,
				HardwareRecipeID: d.HardwareRecipeID,
				APIKey:           d.APIKey,
			})
		}
		WriteJSON(w, http.StatusOK, devicesResponse{Devices: out})
	}
}

func handleCreateDevice(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upsertDeviceRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		req.DeviceID = strings.TrimSpace(req.DeviceID)
		if req.DeviceID == "" {
			req.DeviceID = uuid.NewString()
		}

		existing, err := lookupDevice(r.Context(), devices, req.DeviceID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		device := buildDevice(req, existing)
		if err := devices.Upsert(r.Context(), device); err != nil {
			WriteError(w, r, err)
			return
		}
		stored, err := devices.Get(r.Context(), device.DeviceID)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		status := http.StatusOK
		if existing == nil {
			status = http.StatusCreated
		}
		WriteJSON(w, status, stored)
	}
}

func handleGetDevice(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, device)
	}
}

func handleUpdateDevice(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := chi.URLParam(r, "deviceID")
		existing, err := devices.Get(r.Context(), deviceID)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		var req upsertDeviceRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		req.DeviceID = deviceID

		device := buildDevice(req, &existing)
		if err := devices.Upsert(r.Context(), device); err != nil {
			WriteError(w, r, err)
			return
		}
		stored, err := devices.Get(r.Context(), deviceID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, stored)
	}
}

func handleDeleteDevice(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := devices.Delete(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

func handleGetDeviceProject(devices store.DeviceStore, recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		project := enrichProjectScreen(r.Context(), device.Project, device.HardwareRecipeID, recipes)
		WriteJSON(w, http.StatusOK, projectResponse{Project: project})
	}
}

func handlePutDeviceProject(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}

		var req struct {
			Project map[string]any `json:"project"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if req.Project == nil {
			WriteError(w, r, model.NewBadRequestError("project must be a JSON object"))
			return
		}

		device.Project = req.Project
		if err := devices.Upsert(r.Context(), device); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, projectResponse{Project: device.Project})
	}
}

func handleExportDeviceProject(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, exportResponse{Export: projectExport{
			DeviceID:         device.DeviceID,
			Slug:             device.Slug,
			Name:             device.Name,
			HardwareRecipeID: device.HardwareRecipeID,
			APIKey:           device.APIKey,
			Project:          device.Project,
		}})
	}
}

// handleImportDevice restores a device from an exported backup, creating the
// record when the device id is new.
func handleImportDevice(devices store.DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Export *projectExport `json:"export"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if req.Export == nil {
			WriteError(w, r, model.NewBadRequestError("export document is required"))
			return
		}
		exp := req.Export
		exp.DeviceID = strings.TrimSpace(exp.DeviceID)
		if exp.DeviceID == "" {
			WriteError(w, r, model.NewBadRequestError("export is missing device_id"))
			return
		}
		if exp.Project == nil {
			WriteError(w, r, model.NewBadRequestError("export is missing a project document"))
			return
		}

		existing, err := lookupDevice(r.Context(), devices, exp.DeviceID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		device := buildDevice(upsertDeviceRequest{
			DeviceID:         exp.DeviceID,
			Slug:             exp.Slug,
			Name:             exp.Name,
			HardwareRecipeID: exp.HardwareRecipeID,
			APIKey:           exp.APIKey,
			Project:          exp.Project,
		}, existing)
		if err := devices.Upsert(r.Context(), device); err != nil {
			WriteError(w, r, err)
			return
		}
		stored, err := devices.Get(r.Context(), device.DeviceID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, stored)
	}
}

// lookupDevice fetches an existing record, mapping NOT_FOUND to (nil, nil) so
// upsert paths can distinguish create from update.
func lookupDevice(ctx context.Context, devices store.DeviceStore, deviceID string) (*model.DeviceProject, error) {
	device, err := devices.Get(ctx, deviceID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

// buildDevice merges an upsert request with the existing record, if any.
// api_key, project, and device_settings carry over when the request omits
// them; a brand-new device with no key gets a generated one.
func buildDevice(req upsertDeviceRequest, existing *model.DeviceProject) model.DeviceProject {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" && existing != nil {
		apiKey = existing.APIKey
	}
	if apiKey == "" {
		apiKey = model.NewAPIKey()
	}

	project := req.Project
	if project == nil && existing != nil {
		project = existing.Project
	}
	settings := req.DeviceSettings
	if settings == nil && existing != nil {
		settings = existing.DeviceSettings
	}

	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = req.DeviceID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.DeviceID
	}

	device := model.DeviceProject{
		DeviceID:         req.DeviceID,
		Slug:             model.NormalizeSlug(slug),
		Name:             name,
		HardwareRecipeID: strings.TrimSpace(req.HardwareRecipeID),
		APIKey:           apiKey,
		DeviceSettings:   settings,
		Project:          project,
	}
	device.Migrate()
	return device
}

// enrichProjectScreen fills device.screen from the recipe's extracted
// resolution when the project doesn't carry one, so the editor can size its
// canvas before the first compile. The stored project is not modified.
func enrichProjectScreen(ctx context.Context, project map[string]any, recipeID string, recipes *recipe.Store) map[string]any {
	if recipeID == "" || recipes == nil {
		return project
	}
	devSection, _ := project["device"].(map[string]any)
	if screenComplete(devSection["screen"]) {
		return project
	}

	text, err := recipes.Text(ctx, recipeID)
	if err != nil {
		return project
	}
	meta := recipe.ValidateText(text, recipeID).Metadata
	if meta == nil || meta.Resolution == nil || meta.Resolution.Width <= 0 || meta.Resolution.Height <= 0 {
		return project
	}

	out := make(map[string]any, len(project)+1)
	for k, v := range project {
		out[k] = v
	}
	dev := make(map[string]any, len(devSection)+2)
	for k, v := range devSection {
		dev[k] = v
	}
	dev["hardware_recipe_id"] = recipeID
	dev["screen"] = map[string]any{
		"width":  meta.Resolution.Width,
		"height": meta.Resolution.Height,
	}
	out["device"] = dev
	return out
}

func screenComplete(v any) bool {
	screen, ok := v.(map[string]any)
	if !ok {
		return false
	}
	return numericValue(screen["width"]) > 0 && numericValue(screen["height"]) > 0
}

func numericValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func isNotFound(err error) bool {
	var ee *model.ErrorEnvelope
	return errors.As(err, &ee) && ee.Code == model.ErrNotFound
}

package transport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/panelsmith/panelsmith/internal/observability"
	"github.com/panelsmith/panelsmith/internal/recipe"
	"github.com/panelsmith/panelsmith/model"
)

type recipesResponse struct {
	Recipes []model.RecipeInfo `json:"recipes"`
}

func handleListRecipes(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, recipesResponse{Recipes: recipes.List(r.Context())})
	}
}

func handleGetRecipe(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exp, err := recipes.Export(r.Context(), chi.URLParam(r, "recipeID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, exp)
	}
}

func handlePutRecipe(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recipeID := chi.URLParam(r, "recipeID")

		var req struct {
			YAML string `json:"yaml"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if strings.TrimSpace(req.YAML) == "" {
			WriteError(w, r, model.NewBadRequestError("yaml is required"))
			return
		}

		if err := recipes.Save(r.Context(), recipeID, req.YAML); err != nil {
			WriteError(w, r, err)
			return
		}
		info, err := recipes.Get(r.Context(), recipeID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

func handleDeleteRecipe(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := recipes.Delete(r.Context(), chi.URLParam(r, "recipeID")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

func handleCloneRecipe(recipes *recipe.Store, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		info, err := recipes.Clone(r.Context(), chi.URLParam(r, "recipeID"), req.ID, req.Label)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if metrics != nil {
			metrics.RecordRecipeClone()
		}
		WriteJSON(w, http.StatusCreated, info)
	}
}

func handleRenameRecipe(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recipeID := chi.URLParam(r, "recipeID")

		var req struct {
			Label string `json:"label"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		if err := recipes.Rename(r.Context(), recipeID, req.Label); err != nil {
			WriteError(w, r, err)
			return
		}
		info, err := recipes.Get(r.Context(), recipeID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

func handleExportRecipe(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exp, err := recipes.Export(r.Context(), chi.URLParam(r, "recipeID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, exp)
	}
}

// importRecipeResponse extends the listing entry with the stored path so the
// response names the file the import produced.
type importRecipeResponse struct {
	model.RecipeInfo
	Path string `json:"path"`
}

func handleImportRecipe(recipes *recipe.Store, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			YAML  string `json:"yaml"`
			ID    string `json:"id"`
			Label string `json:"label"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		info, path, err := recipes.Import(r.Context(), req.YAML, req.ID, req.Label)
		if err != nil {
			if metrics != nil {
				metrics.RecordRecipeImport("error")
			}
			WriteError(w, r, err)
			return
		}
		if metrics != nil {
			metrics.RecordRecipeImport("ok")
		}
		WriteJSON(w, http.StatusCreated, importRecipeResponse{RecipeInfo: info, Path: path})
	}
}

// handleValidateRecipe checks either raw yaml from the body or a stored
// recipe named by id.
func handleValidateRecipe(recipes *recipe.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RecipeID string `json:"recipe_id"`
			YAML     string `json:"yaml"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		if strings.TrimSpace(req.YAML) != "" {
			WriteJSON(w, http.StatusOK, recipe.ValidateText(req.YAML, strings.TrimSpace(req.RecipeID)))
			return
		}

		rid := strings.TrimSpace(req.RecipeID)
		if rid == "" {
			WriteError(w, r, model.NewBadRequestError("recipe_id or yaml is required"))
			return
		}
		result, err := recipes.Validate(r.Context(), rid)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

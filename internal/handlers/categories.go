package handlers

import "net/http"

// ListCategories handles GET /api/categories. The chart of accounts is
// shared by every user.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.categories.Categories())
}

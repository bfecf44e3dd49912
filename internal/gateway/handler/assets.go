package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adflow/internal/gateway/repository/asset"
)

// AssetHandler serves rendered banners out of an asset store for backends
// that cannot hand out their own URLs.
type AssetHandler struct {
	store asset.Store
	log   *zap.Logger
}

func NewAssetHandler(store asset.Store, log *zap.Logger) *AssetHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssetHandler{store: store, log: log}
}

func (h *AssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "*"))
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	data, err := h.store.Get(r.Context(), key)
	if errors.Is(err, asset.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Warn("asset read failed", zap.String("key", key), zap.Error(err))
		http.Error(w, "asset unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType(key, data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

func contentType(key string, data []byte) string {
	switch {
	case strings.HasSuffix(key, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	}
	return http.DetectContentType(data)
}

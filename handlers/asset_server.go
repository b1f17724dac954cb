package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// AssetServer serves files from one media subdirectory. It must be mounted on
// a wildcard route; the wildcard is the path within the subdirectory:
//
//	r.Get("/snapshots/*", AssetServer(cfg.MediaStoragePath, cfg.SnapshotsSubDir, time.Hour))
func AssetServer(baseStoragePath, subDir string, cacheDuration time.Duration) http.HandlerFunc {
	fullAssetDirPath := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	log.Printf("Serving assets for '%s' from directory: %s", subDir, fullAssetDirPath)

	if !strings.HasPrefix(fullAssetDirPath, filepath.Clean(baseStoragePath)) {
		log.Fatalf("FATAL: Asset subdirectory '%s' resolved outside base storage path '%s'. Resolved path: '%s'", subDir, baseStoragePath, fullAssetDirPath)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := chi.URLParam(r, "*")
		if relativePath == "" || strings.Contains(relativePath, "..") {
			WriteAPIError(w, r, http.StatusBadRequest, "invalid_path", "Invalid asset path")
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(fullAssetDirPath, relativePath))
		if !strings.HasPrefix(cleanedAssetPath, fullAssetDirPath+string(filepath.Separator)) {
			WriteAPIError(w, r, http.StatusForbidden, "forbidden", "Forbidden")
			log.Printf("SECURITY: Attempted asset access outside designated directory: Request='%s', Resolved='%s', Allowed Base='%s'",
				r.URL.Path, cleanedAssetPath, fullAssetDirPath)
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Internal Server Error")
			log.Printf("Error stating asset file %s: %v", cleanedAssetPath, err)
			return
		}

		if cacheDuration > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
			w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))
		}
		http.ServeFile(w, r, cleanedAssetPath)
	}
}

package services

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"fieldkit/platform/auth"
	"fieldkit/platform/storage"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Images are stored under <user_id>/<filename> and addressed through the
// /api/images/ indirection, which is also how knowledge text and note
// renderings reference them.
const imageUrlPrefix = "/api/images/"

const maxImageUploadSize = 10 << 20

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type ImageService struct {
	store    storage.Storage
	userAuth auth.IdentityProvider
}

func (s *ImageService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/upload", s.Upload)
	r.Get("/*", s.Serve)

	return r
}

type imageUploadResponse struct {
	Url      string `json:"url"`
	Filename string `json:"filename"`
}

func (s *ImageService) Upload(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxImageUploadSize); err != nil {
		http.Error(w, fmt.Sprintf("error parsing upload: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, fmt.Sprintf("missing image in upload: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := imageContentTypes[ext]; !ok {
		http.Error(w, fmt.Sprintf("unsupported image type '%v'", ext), http.StatusBadRequest)
		return
	}

	filename := fmt.Sprintf("%v%v", uuid.New(), ext)
	path := fmt.Sprintf("%v/%v", user.Id, filename)

	if err := s.store.Write(path, file); err != nil {
		slog.Error("error storing uploaded image", "user_id", user.Id, "error", err)
		http.Error(w, "error storing image", http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, imageUploadResponse{Url: imageUrlPrefix + path, Filename: filename})
}

func (s *ImageService) Serve(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	path, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || path == "" || strings.Contains(path, "..") {
		http.Error(w, "invalid image path", http.StatusBadRequest)
		return
	}

	// Generated knowledge text reduces an image reference to its bare
	// filename; those resolve back under the caller's own directory.
	if !strings.Contains(path, "/") {
		path = fmt.Sprintf("%v/%v", user.Id, path)
	}

	file, err := s.store.Read(path)
	if err != nil {
		http.Error(w, "image not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	contentType, ok := imageContentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("error writing image response", "path", path, "error", err)
	}
}

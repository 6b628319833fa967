package cleanup

import (
	"strings"

	"fieldkit/platform/schema"
	"fieldkit/platform/storage"
)

// StorageCleanup removes a team's files from the object store: uploaded
// documents by their stored paths, plus any note images referenced through
// the image api indirection.
type StorageCleanup struct {
	store storage.Storage
}

func NewStorageCleanup(store storage.Storage) *StorageCleanup {
	return &StorageCleanup{store: store}
}

type StorageResult struct {
	DocumentsDeleted int            `json:"documents_deleted"`
	ImagesDeleted    int            `json:"images_deleted"`
	Errors           []CleanupError `json:"errors"`
}

const imageUrlPrefix = "/api/images/"

func imagePathFromUrl(imageUrl string) (string, bool) {
	if !strings.HasPrefix(imageUrl, imageUrlPrefix) {
		return "", false
	}
	// Image urls address storage as <user_id>/<filename>.
	path := strings.TrimPrefix(imageUrl, imageUrlPrefix)
	if !strings.Contains(path, "/") {
		return "", false
	}
	return path, true
}

// NoteImagePaths extracts the storage paths of every image referenced by the
// given notes, including the legacy single-image field.
func NoteImagePaths(notes []schema.Note) []string {
	paths := make([]string, 0)
	seen := make(map[string]struct{})

	add := func(imageUrl string) {
		path, ok := imagePathFromUrl(imageUrl)
		if !ok {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	for _, note := range notes {
		for _, image := range note.Images {
			add(image.Url)
		}
		if len(note.Images) == 0 && note.ImageUrl != "" {
			add(note.ImageUrl)
		}
	}
	return paths
}

func (c *StorageCleanup) deletePaths(kind string, paths []string) (int, []CleanupError) {
	deleted := 0
	errs := make([]CleanupError, 0)
	for _, path := range paths {
		if err := c.store.Delete(path); err != nil {
			errs = append(errs, softError("failed to delete %s %s: %v", kind, path, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

// CleanupTeamStorage deletes the given document paths and every note image
// path, continuing past individual failures.
func (c *StorageCleanup) CleanupTeamStorage(documentPaths []string, notes []schema.Note) StorageResult {
	result := StorageResult{Errors: make([]CleanupError, 0)}

	deleted, errs := c.deletePaths("document", documentPaths)
	result.DocumentsDeleted = deleted
	result.Errors = append(result.Errors, errs...)

	deleted, errs = c.deletePaths("note image", NoteImagePaths(notes))
	result.ImagesDeleted = deleted
	result.Errors = append(result.Errors, errs...)

	return result
}

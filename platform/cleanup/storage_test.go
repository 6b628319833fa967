package cleanup_test

import (
	"errors"
	"strings"
	"testing"

	"fieldkit/platform/cleanup"
	"fieldkit/platform/schema"
)

func TestNoteImagePaths(t *testing.T) {
	userId := "1b671a64-40d5-491e-99b0-da01ff1f3341"
	notes := []schema.Note{
		{Images: []schema.NoteImage{
			{Url: "/api/images/" + userId + "/tray.png"},
			{Url: "/api/images/" + userId + "/tray.png"},
			{Url: "https://elsewhere.example.com/external.png"},
			{Url: "/api/images/orphan.png"},
		}},
		{ImageUrl: "/api/images/" + userId + "/legacy.jpg"},
	}

	paths := cleanup.NoteImagePaths(notes)

	expected := []string{userId + "/tray.png", userId + "/legacy.jpg"}
	if len(paths) != len(expected) || paths[0] != expected[0] || paths[1] != expected[1] {
		t.Fatalf("expected %v, got %v", expected, paths)
	}
}

func TestCleanupTeamStorage(t *testing.T) {
	store := newStoreFake()
	service := cleanup.NewStorageCleanup(store)

	notes := []schema.Note{
		{Images: []schema.NoteImage{{Url: "/api/images/u1/a.png"}}},
	}

	result := service.CleanupTeamStorage([]string{"docs/one.pdf", "docs/two.pdf"}, notes)

	if result.DocumentsDeleted != 2 || result.ImagesDeleted != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(store.deleted) != 3 {
		t.Fatalf("expected 3 deletions, got %v", store.deleted)
	}
}

func TestCleanupTeamStorageContinuesPastFailure(t *testing.T) {
	store := newStoreFake()
	store.deleteErrs["docs/bad.pdf"] = errors.New("access denied")
	service := cleanup.NewStorageCleanup(store)

	result := service.CleanupTeamStorage([]string{"docs/one.pdf", "docs/bad.pdf", "docs/two.pdf"}, nil)

	if result.DocumentsDeleted != 2 {
		t.Fatalf("expected remaining documents deleted, got %d", result.DocumentsDeleted)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Message, "docs/bad.pdf") {
		t.Fatalf("expected one error naming the failing path, got %+v", result.Errors)
	}
	if result.Errors[0].Severity != cleanup.SeveritySoft {
		t.Fatalf("storage failures are soft, got %v", result.Errors[0].Severity)
	}
}

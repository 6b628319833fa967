package tests

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestImageUploadAndServe(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	imageData := []byte("\x89PNG fake image bytes")

	url, err := alice.uploadImage("diagram.png", imageData)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "/api/images/") {
		t.Fatalf("unexpected image url: %v", url)
	}

	body, contentType, err := alice.fetchImage(url)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, imageData) {
		t.Fatal("served image does not match upload")
	}
	if contentType != "image/png" {
		t.Fatalf("unexpected content type: %v", contentType)
	}

	// Knowledge text reduces image urls to the bare filename, which must
	// resolve back under the caller's own directory.
	filename := url[strings.LastIndex(url, "/")+1:]
	body, _, err = alice.fetchImage("/api/images/" + filename)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, imageData) {
		t.Fatal("bare filename did not resolve to the uploaded image")
	}

	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := bob.fetchImage("/api/images/" + filename); err == nil {
		t.Fatal("bare filename must not resolve to another user's image")
	}

	anon := env.newClient()
	if _, _, err := anon.fetchImage(url); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	if _, err := alice.uploadImage("payload.exe", []byte("nope")); err == nil {
		t.Fatal("non-image upload must be rejected")
	}
}

func TestTeamDeletionRemovesNoteImages(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	teamId, err := alice.createTeam("Imaging Co")
	if err != nil {
		t.Fatal(err)
	}
	portfolioId, err := alice.createPortfolio(teamId, "Scopes")
	if err != nil {
		t.Fatal(err)
	}

	url, err := alice.uploadImage("scope-setup.jpg", []byte("jpeg bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.createNoteWithImage(teamId, portfolioId, "Scope setup", "Tower on the left.", url); err != nil {
		t.Fatal(err)
	}

	imagePath := strings.TrimPrefix(url, "/api/images/")
	if exists, err := env.storage.Exists(imagePath); err != nil || !exists {
		t.Fatalf("uploaded image missing from storage: exists=%v err=%v", exists, err)
	}

	report, err := alice.deleteTeam(teamId, "Imaging Co", true)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Success || report.PartialCleanup {
		t.Fatalf("unexpected deletion report: %+v", report)
	}
	if report.DeletedResources.StorageFiles != 1 {
		t.Fatalf("note image not counted in storage cleanup: %+v", report.DeletedResources)
	}

	if exists, err := env.storage.Exists(imagePath); err != nil || exists {
		t.Fatalf("note image left in storage after team deletion: exists=%v err=%v", exists, err)
	}
}

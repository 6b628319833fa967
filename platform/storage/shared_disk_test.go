package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSharedDiskReadWrite(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	err := store.Write("teams/abc/docs/report.pdf", strings.NewReader("report contents"))
	assert.NoError(t, err)

	exists, err := store.Exists("teams/abc/docs/report.pdf")
	assert.NoError(t, err)
	assert.True(t, exists)

	file, err := store.Read("teams/abc/docs/report.pdf")
	assert.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	assert.NoError(t, err)
	assert.Equal(t, "report contents", string(data))

	// Overwrites should replace the old contents entirely.
	err = store.Write("teams/abc/docs/report.pdf", bytes.NewReader([]byte("v2")))
	assert.NoError(t, err)

	file, err = store.Read("teams/abc/docs/report.pdf")
	assert.NoError(t, err)
	defer file.Close()

	data, err = io.ReadAll(file)
	assert.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestSharedDiskListAndDelete(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		err := store.Write("teams/abc/notes/"+name, strings.NewReader(name))
		assert.NoError(t, err)
	}

	entries, err := store.List("teams/abc/notes")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.txt"}, entries)

	err = store.Delete("teams/abc/notes/b.txt")
	assert.NoError(t, err)

	exists, err := store.Exists("teams/abc/notes/b.txt")
	assert.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing path is not an error.
	err = store.Delete("teams/abc/notes/b.txt")
	assert.NoError(t, err)

	err = store.DeleteBatch([]string{"teams/abc/notes/a.txt", "teams/abc/notes/c.txt"})
	assert.NoError(t, err)

	entries, err = store.List("teams/abc/notes")
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSharedDiskSignedURL(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	err := store.Write("images/note.png", strings.NewReader("png bytes"))
	assert.NoError(t, err)

	url, err := store.SignedURL("images/note.png", time.Minute)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "images/note.png"))

	_, err = store.SignedURL("images/missing.png", time.Minute)
	assert.Error(t, err)
}

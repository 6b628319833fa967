package chatctx_test

import (
	"context"
	"fmt"
	"testing"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/schema"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.Tables()...); err != nil {
		t.Fatal(err)
	}

	return db
}

// apiStub is an in memory assistant api. Unimplemented methods panic via the
// embedded nil interface.
type apiStub struct {
	assistantapi.Client

	storeFiles map[string][]string
	uploads    map[string]string

	nextFileId int

	uploadErr   error
	listErr     error
	addFileErrs map[string]error

	removedFromStore []string
	deletedFiles     []string

	steps    []assistantapi.RunStep
	stepsErr error

	uploadCalls int
	addCalls    int
}

func newApiStub() *apiStub {
	return &apiStub{
		storeFiles:  make(map[string][]string),
		uploads:     make(map[string]string),
		addFileErrs: make(map[string]error),
	}
}

func (s *apiStub) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	s.uploadCalls++
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.nextFileId++
	fileId := fmt.Sprintf("file-%d", s.nextFileId)
	s.uploads[fileId] = string(data)
	return fileId, nil
}

func (s *apiStub) DeleteFile(ctx context.Context, fileId string) error {
	s.deletedFiles = append(s.deletedFiles, fileId)
	delete(s.uploads, fileId)
	return nil
}

func (s *apiStub) ListVectorStoreFiles(ctx context.Context, vectorStoreId string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.storeFiles[vectorStoreId], nil
}

func (s *apiStub) AddFileToVectorStore(ctx context.Context, vectorStoreId, fileId string) error {
	s.addCalls++
	if err := s.addFileErrs[fileId]; err != nil {
		return err
	}
	s.storeFiles[vectorStoreId] = append(s.storeFiles[vectorStoreId], fileId)
	return nil
}

func (s *apiStub) RemoveFileFromVectorStore(ctx context.Context, vectorStoreId, fileId string) error {
	s.removedFromStore = append(s.removedFromStore, fileId)
	kept := make([]string, 0)
	for _, id := range s.storeFiles[vectorStoreId] {
		if id != fileId {
			kept = append(kept, id)
		}
	}
	s.storeFiles[vectorStoreId] = kept
	return nil
}

func (s *apiStub) ListRunSteps(ctx context.Context, threadId, runId string) ([]assistantapi.RunStep, error) {
	if s.stepsErr != nil {
		return nil, s.stepsErr
	}
	return s.steps, nil
}

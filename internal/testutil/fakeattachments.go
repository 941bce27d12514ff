package testutil

import (
	"context"
	"sync"

	"todoapi/internal/attachment"
)

// FakeBucket is the bucket name used by FakeAttachments URLs.
const FakeBucket = "test-bucket"

// FakeAttachments is an in-memory attachment store for testing.
type FakeAttachments struct {
	mu      sync.Mutex
	objects map[string]struct{}
	deleted []string

	// Error injection for testing
	UploadURLErr error
	DeleteErr    error
}

// NewFakeAttachments creates an empty FakeAttachments.
func NewFakeAttachments() *FakeAttachments {
	return &FakeAttachments{objects: make(map[string]struct{})}
}

// Put simulates a client uploading objectID through a pre-signed URL.
func (f *FakeAttachments) Put(objectID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectID] = struct{}{}
}

// Has reports whether objectID is stored.
func (f *FakeAttachments) Has(objectID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[objectID]
	return ok
}

// Deleted returns the object ids passed to Delete, in call order.
func (f *FakeAttachments) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// UploadURL implements todo.AttachmentStore.
func (f *FakeAttachments) UploadURL(ctx context.Context, objectID string) (string, error) {
	if f.UploadURLErr != nil {
		return "", f.UploadURLErr
	}
	return f.ObjectURL(objectID) + "?X-Amz-Signature=fake", nil
}

// Delete implements todo.AttachmentStore.
func (f *FakeAttachments) Delete(ctx context.Context, objectURL string) error {
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	objectID, err := attachment.ObjectID(objectURL)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectID)
	f.deleted = append(f.deleted, objectID)
	return nil
}

// ObjectURL implements todo.AttachmentStore.
func (f *FakeAttachments) ObjectURL(objectID string) string {
	return "https://" + FakeBucket + ".s3.amazonaws.com/" + objectID
}

// Package todo holds the task item model and the business logic that
// mediates between request handlers, the item store and the attachment store.
package todo

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Verifier resolves the user id from a raw Authorization header value.
type Verifier interface {
	VerifyIdentity(header string) (string, error)
}

// ItemStore persists items keyed by (userID, todoID).
// Update and SetAttachmentURL return ErrNotFound when the key does not exist.
type ItemStore interface {
	ListByOwner(ctx context.Context, userID string) ([]Item, error)
	Get(ctx context.Context, userID, todoID string) (Item, bool, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, userID, todoID, name, dueDate string, done bool) (Item, error)
	Delete(ctx context.Context, userID, todoID string) error
	SetAttachmentURL(ctx context.Context, userID, todoID, url string) error
}

// AttachmentStore issues upload URLs for and deletes attachment objects.
type AttachmentStore interface {
	UploadURL(ctx context.Context, objectID string) (string, error)
	Delete(ctx context.Context, objectURL string) error
	ObjectURL(objectID string) string
}

// Service implements the todo operations. It holds no per-request state.
type Service struct {
	verifier    Verifier
	items       ItemStore
	attachments AttachmentStore
	logger      *log.Logger

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the generator for todo and attachment ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a Service with its dependencies.
func NewService(verifier Verifier, items ItemStore, attachments AttachmentStore, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		verifier:    verifier,
		items:       items,
		attachments: attachments,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) identity(header string) (string, error) {
	userID, err := s.verifier.VerifyIdentity(header)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return userID, nil
}

// List returns the caller's items, most recently added first.
func (s *Service) List(ctx context.Context, header string) ([]Item, error) {
	userID, err := s.identity(header)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("listing todos for user %s", userID)
	items, err := s.items.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return items, nil
}

// Create stores a new item for the caller with done=false and no attachment.
func (s *Service) Create(ctx context.Context, header string, req CreateRequest) (Item, error) {
	userID, err := s.identity(header)
	if err != nil {
		return Item{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return Item{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	s.logger.Printf("creating todo %+v for user %s", req, userID)
	item := Item{
		UserID:        userID,
		TodoID:        s.newID(),
		CreatedAt:     FormatTime(s.now()),
		Name:          req.Name,
		DueDate:       req.DueDate,
		Done:          false,
		AttachmentURL: "",
	}
	stored, err := s.items.Create(ctx, item)
	if err != nil {
		return Item{}, fmt.Errorf("create todo: %w", err)
	}
	return stored, nil
}

// Update replaces name, due date and done on one of the caller's items.
// An id that belongs to another user is not addressable under the caller's
// key and yields ErrNotFound without touching the other user's item.
func (s *Service) Update(ctx context.Context, header, todoID string, req UpdateRequest) (Item, error) {
	userID, err := s.identity(header)
	if err != nil {
		return Item{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return Item{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	s.logger.Printf("updating todo %s with %+v for user %s", todoID, req, userID)
	item, err := s.items.Update(ctx, userID, todoID, req.Name, req.DueDate, req.Done)
	if err != nil {
		return Item{}, fmt.Errorf("update todo %s: %w", todoID, err)
	}
	return item, nil
}

// Delete removes one of the caller's items and its attachment object, if any.
// Deleting a missing item is not an error.
func (s *Service) Delete(ctx context.Context, header, todoID string) error {
	userID, err := s.identity(header)
	if err != nil {
		return err
	}

	s.logger.Printf("deleting todo %s for user %s", todoID, userID)
	item, found, err := s.items.Get(ctx, userID, todoID)
	if err != nil {
		return fmt.Errorf("get todo %s: %w", todoID, err)
	}
	if found && item.AttachmentURL != "" {
		if err := s.attachments.Delete(ctx, item.AttachmentURL); err != nil {
			return fmt.Errorf("delete attachment of todo %s: %w", todoID, err)
		}
	}
	if err := s.items.Delete(ctx, userID, todoID); err != nil {
		return fmt.Errorf("delete todo %s: %w", todoID, err)
	}
	return nil
}

// RequestUploadURL points the item at a fresh attachment object and returns a
// pre-signed URL for uploading it. A previous attachment object is deleted
// before the reference is replaced; the reference is written only after that
// succeeds.
func (s *Service) RequestUploadURL(ctx context.Context, header, todoID string) (string, error) {
	userID, err := s.identity(header)
	if err != nil {
		return "", err
	}

	objectID := s.newID()
	s.logger.Printf("issuing upload url for todo %s of user %s (object %s)", todoID, userID, objectID)

	item, found, err := s.items.Get(ctx, userID, todoID)
	if err != nil {
		return "", fmt.Errorf("get todo %s: %w", todoID, err)
	}
	if !found {
		return "", fmt.Errorf("todo %s: %w", todoID, ErrNotFound)
	}
	if item.AttachmentURL != "" {
		if err := s.attachments.Delete(ctx, item.AttachmentURL); err != nil {
			return "", fmt.Errorf("delete previous attachment of todo %s: %w", todoID, err)
		}
	}

	if err := s.items.SetAttachmentURL(ctx, userID, todoID, s.attachments.ObjectURL(objectID)); err != nil {
		return "", fmt.Errorf("set attachment of todo %s: %w", todoID, err)
	}
	uploadURL, err := s.attachments.UploadURL(ctx, objectID)
	if err != nil {
		return "", fmt.Errorf("issue upload url for todo %s: %w", todoID, err)
	}
	return uploadURL, nil
}

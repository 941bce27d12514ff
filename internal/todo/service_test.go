package todo_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoapi/internal/auth"
	"todoapi/internal/store"
	"todoapi/internal/testutil"
	"todoapi/internal/todo"
)

var testCtx = context.Background()

type fixture struct {
	svc         *todo.Service
	items       *store.RedisStore
	attachments *testutil.FakeAttachments
	signer      *testutil.Signer
}

func newFixture(t *testing.T, opts ...todo.Option) *fixture {
	t.Helper()
	signer := testutil.NewSigner(t)
	verifier, err := auth.NewVerifier(signer.CertificatePEM())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	items := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = items.Close() })

	attachments := testutil.NewFakeAttachments()
	logger := log.New(io.Discard, "", 0)
	return &fixture{
		svc:         todo.NewService(verifier, items, attachments, logger, opts...),
		items:       items,
		attachments: attachments,
		signer:      signer,
	}
}

// sequentialIDs returns a generator yielding id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestCreate_SetsDefaults(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	f := newFixture(t, todo.WithClock(func() time.Time { return now }))
	alice := f.signer.Header(t, "alice")

	item, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "Buy milk", DueDate: "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, "alice", item.UserID)
	assert.NotEmpty(t, item.TodoID)
	assert.Equal(t, "2024-05-06T07:08:09.123Z", item.CreatedAt)
	assert.Equal(t, "Buy milk", item.Name)
	assert.Equal(t, "2024-01-01", item.DueDate)
	assert.False(t, item.Done)
	assert.Equal(t, "", item.AttachmentURL)

	got, found, err := f.items.Get(testCtx, "alice", item.TodoID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, item, got)
}

func TestCreate_GeneratesDistinctIDs(t *testing.T) {
	f := newFixture(t)
	alice := f.signer.Header(t, "alice")

	a, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "a"})
	require.NoError(t, err)
	b, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a.TodoID, b.TodoID)
}

func TestCreate_RequiresName(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(testCtx, f.signer.Header(t, "alice"), todo.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, todo.ErrInvalidInput)
}

func TestList_OnlyCallerItems(t *testing.T) {
	f := newFixture(t)
	alice := f.signer.Header(t, "alice")
	bob := f.signer.Header(t, "bob")

	mine, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "mine"})
	require.NoError(t, err)
	_, err = f.svc.Create(testCtx, bob, todo.CreateRequest{Name: "theirs"})
	require.NoError(t, err)

	items, err := f.svc.List(testCtx, alice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine, items[0])
}

func TestUpdate_ChangesEditableFields(t *testing.T) {
	f := newFixture(t)
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "draft", DueDate: "2024-01-01"})
	require.NoError(t, err)

	updated, err := f.svc.Update(testCtx, alice, created.TodoID, todo.UpdateRequest{Name: "final", DueDate: "2024-02-02", Done: true})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Name)
	assert.Equal(t, "2024-02-02", updated.DueDate)
	assert.True(t, updated.Done)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, created.TodoID, updated.TodoID)
}

func TestUpdate_OtherUsersItemIsNotMutated(t *testing.T) {
	f := newFixture(t)
	bobs, err := f.svc.Create(testCtx, f.signer.Header(t, "bob"), todo.CreateRequest{Name: "bob's"})
	require.NoError(t, err)

	_, err = f.svc.Update(testCtx, f.signer.Header(t, "alice"), bobs.TodoID, todo.UpdateRequest{Name: "hijacked", Done: true})
	assert.ErrorIs(t, err, todo.ErrNotFound)

	got, found, err := f.items.Get(testCtx, "bob", bobs.TodoID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, bobs, got)

	_, found, err = f.items.Get(testCtx, "alice", bobs.TodoID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_RemovesItemAndAttachment(t *testing.T) {
	f := newFixture(t, todo.WithIDGenerator(sequentialIDs()))
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "with image"})
	require.NoError(t, err)
	_, err = f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	require.NoError(t, err)
	f.attachments.Put("id-2")

	require.NoError(t, f.svc.Delete(testCtx, alice, created.TodoID))

	assert.False(t, f.attachments.Has("id-2"))
	_, found, err := f.items.Get(testCtx, "alice", created.TodoID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "gone"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(testCtx, alice, created.TodoID))
	require.NoError(t, f.svc.Delete(testCtx, alice, created.TodoID))
	assert.Empty(t, f.attachments.Deleted())
}

func TestDelete_OtherUsersItemSurvives(t *testing.T) {
	f := newFixture(t)
	bobs, err := f.svc.Create(testCtx, f.signer.Header(t, "bob"), todo.CreateRequest{Name: "bob's"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(testCtx, f.signer.Header(t, "alice"), bobs.TodoID))

	_, found, err := f.items.Get(testCtx, "bob", bobs.TodoID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRequestUploadURL_ReplacesPreviousAttachment(t *testing.T) {
	f := newFixture(t, todo.WithIDGenerator(sequentialIDs()))
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "photo"})
	require.NoError(t, err)
	require.Equal(t, "id-1", created.TodoID)

	url1, err := f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	require.NoError(t, err)
	assert.Contains(t, url1, "/id-2?")
	f.attachments.Put("id-2")

	item, _, err := f.items.Get(testCtx, "alice", created.TodoID)
	require.NoError(t, err)
	assert.Equal(t, "https://test-bucket.s3.amazonaws.com/id-2", item.AttachmentURL)
	assert.Empty(t, f.attachments.Deleted())

	url2, err := f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	require.NoError(t, err)
	assert.Contains(t, url2, "/id-3?")

	assert.Equal(t, []string{"id-2"}, f.attachments.Deleted())
	assert.False(t, f.attachments.Has("id-2"))
	item, _, err = f.items.Get(testCtx, "alice", created.TodoID)
	require.NoError(t, err)
	assert.Equal(t, "https://test-bucket.s3.amazonaws.com/id-3", item.AttachmentURL)
}

func TestRequestUploadURL_MissingItem(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestUploadURL(testCtx, f.signer.Header(t, "alice"), "nope")
	assert.ErrorIs(t, err, todo.ErrNotFound)
	assert.Empty(t, f.attachments.Deleted())
}

func TestRequestUploadURL_FailedCleanupKeepsReference(t *testing.T) {
	f := newFixture(t, todo.WithIDGenerator(sequentialIDs()))
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "photo"})
	require.NoError(t, err)
	_, err = f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	require.NoError(t, err)

	boom := errors.New("s3 unavailable")
	f.attachments.DeleteErr = boom
	_, err = f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	assert.ErrorIs(t, err, boom)

	item, _, err := f.items.Get(testCtx, "alice", created.TodoID)
	require.NoError(t, err)
	assert.Equal(t, "https://test-bucket.s3.amazonaws.com/id-2", item.AttachmentURL)
}

func TestDelete_FailedAttachmentCleanupKeepsItem(t *testing.T) {
	f := newFixture(t)
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "photo"})
	require.NoError(t, err)
	_, err = f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	require.NoError(t, err)

	f.attachments.DeleteErr = errors.New("s3 unavailable")
	require.Error(t, f.svc.Delete(testCtx, alice, created.TodoID))

	_, found, err := f.items.Get(testCtx, "alice", created.TodoID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUpstreamFailurePropagates(t *testing.T) {
	f := newFixture(t)
	alice := f.signer.Header(t, "alice")
	created, err := f.svc.Create(testCtx, alice, todo.CreateRequest{Name: "x"})
	require.NoError(t, err)

	boom := errors.New("presign failed")
	f.attachments.UploadURLErr = boom
	_, err = f.svc.RequestUploadURL(testCtx, alice, created.TodoID)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, todo.ErrNotFound)
	assert.NotErrorIs(t, err, todo.ErrUnauthorized)
}

func TestMalformedHeaderIsUnauthorizedEverywhere(t *testing.T) {
	f := newFixture(t)
	token := f.signer.Token(t, "alice")

	for _, header := range []string{"", token, "Token " + token} {
		_, err := f.svc.List(testCtx, header)
		assert.ErrorIs(t, err, todo.ErrUnauthorized)
		assert.ErrorIs(t, err, auth.ErrMalformedHeader)

		_, err = f.svc.Create(testCtx, header, todo.CreateRequest{Name: "x"})
		assert.ErrorIs(t, err, todo.ErrUnauthorized)

		_, err = f.svc.Update(testCtx, header, "id", todo.UpdateRequest{Name: "x"})
		assert.ErrorIs(t, err, todo.ErrUnauthorized)

		err = f.svc.Delete(testCtx, header, "id")
		assert.ErrorIs(t, err, todo.ErrUnauthorized)

		_, err = f.svc.RequestUploadURL(testCtx, header, "id")
		assert.ErrorIs(t, err, todo.ErrUnauthorized)
	}
}

func TestForeignSignatureIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	other := testutil.NewSigner(t)

	_, err := f.svc.List(testCtx, other.Header(t, "alice"))
	assert.ErrorIs(t, err, todo.ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

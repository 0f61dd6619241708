package sync

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/taskbridge/internal/tasks"
	"github.com/fleetline/taskbridge/internal/telegram"
)

func TestSingleImageSentAsCaptionedPhoto(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(1)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	require.Len(t, client.photos, 1)
	assert.Empty(t, client.albums)
	photo := client.photos[0]
	assert.Equal(t, "Water pump", photo.Caption)
	assert.Equal(t, "https://files.test/0.jpg", photo.Payload.URL)
	assert.Equal(t, 1, photo.Opts.ReplyTo, "album threads under the main message")
	assert.Equal(t, []int{photo.ID}, store.syncState().PreviewMessageIDs)
}

func TestAlbumSentAsSingleBatch(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(3)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	require.Len(t, client.albums, 1)
	assert.Empty(t, client.photos)
	album := client.albums[0]
	require.Len(t, album.Items, 3)
	assert.Equal(t, "Water pump", album.Items[0].Caption, "caption rides on the first item only")
	assert.Empty(t, album.Items[1].Caption)
	assert.Equal(t, album.IDs, store.syncState().PreviewMessageIDs)
}

func TestOverflowImagesBecomeExtras(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(12)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	require.Len(t, client.albums, 2)
	assert.Len(t, client.albums[0].Items, telegram.MaxAlbumSize)
	assert.Len(t, client.albums[1].Items, 2)

	state := store.syncState()
	assert.Len(t, state.PreviewMessageIDs, telegram.MaxAlbumSize)
	assert.Len(t, state.AttachmentMessageIDs, 2)
}

func TestOversizedCaptionFallsBackToSingles(t *testing.T) {
	task := newTask(strings.Repeat("x", telegram.MaxCaptionLength+100))
	task.Attachments = imageAttachments(2)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	assert.Empty(t, client.albums, "a caption over the budget rules the batch call out")
	require.Len(t, client.photos, 2)
	assert.Equal(t, telegram.TruncateCaption(task.Title), client.photos[0].Caption)
	assert.Empty(t, client.photos[1].Caption)
	assert.Len(t, store.syncState().PreviewMessageIDs, 2)
}

func TestBatchFailureFallsBackToSingles(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(3)
	client := &fakeClient{}
	client.sendMediaGroupFn = func(int64, []telegram.AlbumItem) error {
		return classified(telegram.KindOther, "group send failed")
	}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	require.Len(t, client.photos, 3)
	assert.Equal(t, "Water pump", client.photos[0].Caption)
	assert.Len(t, store.syncState().PreviewMessageIDs, 3)
}

func TestUnprocessablePhotoRetriedAsDocument(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(1)
	client := &fakeClient{}
	client.sendPhotoFn = func(int64, telegram.Payload, string) error {
		return classified(telegram.KindUnprocessableMedia, "wrong file identifier/HTTP URL specified")
	}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	require.Len(t, client.documents, 1)
	doc := client.documents[0]
	assert.Equal(t, "Water pump", doc.Caption, "the document retry keeps the caption")
	assert.Equal(t, []int{doc.ID}, store.syncState().PreviewMessageIDs)
}

func TestNonImageExtrasDelivered(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = []tasks.Attachment{
		{URL: "https://youtu.be/dQw4w9WgXcQ", Mime: "video/mp4"},
		{URL: "https://files.test/manual.pdf", Mime: "application/pdf", Name: "manual <v2>.pdf"},
	}
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	// main message + the video link card
	require.Len(t, client.sent, 2)
	link := client.sent[1]
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", link.Text)
	assert.True(t, link.Opts.WebPreview, "the link card relies on the page preview")

	require.Len(t, client.documents, 1)
	assert.Equal(t, "manual &lt;v2&gt;.pdf", client.documents[0].Caption)

	assert.Len(t, store.syncState().AttachmentMessageIDs, 2)
}

func TestPhotosRoutedToDistinctChat(t *testing.T) {
	const photosChat = int64(-1002999000111)
	task := newTask("Water pump")
	task.Attachments = imageAttachments(2)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{
		GroupChatID:   testGroupChat,
		PhotosRouting: map[string]PhotosRoute{"repair": {ChatID: photosChat}},
	})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})

	// The intro message hosts the album in the photos chat and links back.
	require.Len(t, client.sent, 2)
	intro := client.sent[1]
	assert.Equal(t, photosChat, intro.ChatID)
	require.Len(t, intro.Opts.Keyboard, 1)
	assert.Equal(t, "https://t.me/c/2111000222/1", intro.Opts.Keyboard[0][0].URL)

	require.Len(t, client.albums, 1)
	album := client.albums[0]
	assert.Equal(t, photosChat, album.ChatID)
	assert.Equal(t, intro.ID, album.Opts.ReplyTo, "album replies to its intro, not the main message")

	state := store.syncState()
	assert.Equal(t, photosChat, state.PhotosChatID)
	assert.Equal(t, intro.ID, state.PhotosMessageID)
	assert.Equal(t, album.IDs, state.PreviewMessageIDs)
}

func TestUnchangedMediaKeepsMessageIDs(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(2)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})
	first := store.syncState()
	require.Len(t, first.PreviewMessageIDs, 2)

	engine.Synchronize(context.Background(), Request{TaskID: task.ID, Previous: snapshotCopy(store)})

	assert.Equal(t, first.PreviewMessageIDs, store.syncState().PreviewMessageIDs)
	assert.Len(t, client.albums, 1, "an unchanged album is not resent")
	assert.Empty(t, client.deleted)
}

func TestChangedAttachmentsRebuildAlbum(t *testing.T) {
	task := newTask("Water pump")
	task.Attachments = imageAttachments(2)
	client := &fakeClient{}
	store := &fakeStore{snap: task}
	engine := newTestEngine(t, client, store, &fakeDirectory{}, Config{GroupChatID: testGroupChat})

	engine.Synchronize(context.Background(), Request{TaskID: task.ID})
	first := store.syncState()

	previous := snapshotCopy(store)
	store.snap.Attachments = imageAttachments(3)
	engine.Synchronize(context.Background(), Request{TaskID: task.ID, Previous: previous})

	state := store.syncState()
	require.Len(t, client.albums, 2)
	assert.NotEqual(t, first.PreviewMessageIDs, state.PreviewMessageIDs)
	assert.Len(t, state.PreviewMessageIDs, 3)
	for _, id := range first.PreviewMessageIDs {
		assert.Contains(t, client.deleted, telegram.MessageRef{ChatID: testGroupChat, MessageID: id})
	}
	assert.Equal(t, 1, state.ChatMessageID, "the main message survives a media rebuild")
}

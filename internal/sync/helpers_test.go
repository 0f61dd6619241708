package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	gosync "sync"
	"testing"

	"github.com/google/uuid"

	"github.com/fleetline/taskbridge/internal/directory"
	"github.com/fleetline/taskbridge/internal/media"
	"github.com/fleetline/taskbridge/internal/tasks"
	"github.com/fleetline/taskbridge/internal/telegram"
)

const testGroupChat = int64(-1002111000222)

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   telegram.SendOptions
	ID     int
}

type mediaSend struct {
	ChatID  int64
	Payload telegram.Payload
	Caption string
	Opts    telegram.SendOptions
	ID      int
}

type albumSend struct {
	ChatID int64
	Items  []telegram.AlbumItem
	Opts   telegram.SendOptions
	IDs    []int
}

// fakeClient records every delivery and hands out auto-incremented message
// ids. The Fn fields inject failures; a nil hook means success.
type fakeClient struct {
	mu     gosync.Mutex
	nextID int

	sent         []sentMessage
	edits        []telegram.MessageRef
	captionEdits []telegram.MessageRef
	deleted      []telegram.MessageRef
	photos       []mediaSend
	documents    []mediaSend
	albums       []albumSend

	sendMessageFn    func(chatID int64, text string, opts telegram.SendOptions) error
	editTextFn       func(ref telegram.MessageRef, text string) error
	editCaptionFn    func(ref telegram.MessageRef, caption string) error
	deleteFn         func(ref telegram.MessageRef) error
	sendPhotoFn      func(chatID int64, payload telegram.Payload, caption string) error
	sendDocumentFn   func(chatID int64, payload telegram.Payload, caption string) error
	sendMediaGroupFn func(chatID int64, items []telegram.AlbumItem) error
}

func (c *fakeClient) allocID() int {
	c.nextID++
	return c.nextID
}

func (c *fakeClient) SendMessage(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendMessageFn != nil {
		if err := c.sendMessageFn(chatID, text, opts); err != nil {
			return telegram.MessageRef{}, err
		}
	}
	id := c.allocID()
	c.sent = append(c.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts, ID: id})
	return telegram.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (c *fakeClient) EditMessageText(_ context.Context, ref telegram.MessageRef, text string, _ [][]telegram.Button) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, ref)
	if c.editTextFn != nil {
		return c.editTextFn(ref, text)
	}
	return nil
}

func (c *fakeClient) EditMessageCaption(_ context.Context, ref telegram.MessageRef, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captionEdits = append(c.captionEdits, ref)
	if c.editCaptionFn != nil {
		return c.editCaptionFn(ref, caption)
	}
	return nil
}

func (c *fakeClient) DeleteMessage(_ context.Context, ref telegram.MessageRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, ref)
	if c.deleteFn != nil {
		return c.deleteFn(ref)
	}
	return nil
}

func (c *fakeClient) SendPhoto(_ context.Context, chatID int64, payload telegram.Payload, caption string, opts telegram.SendOptions) (telegram.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendPhotoFn != nil {
		if err := c.sendPhotoFn(chatID, payload, caption); err != nil {
			return telegram.MessageRef{}, err
		}
	}
	id := c.allocID()
	c.photos = append(c.photos, mediaSend{ChatID: chatID, Payload: payload, Caption: caption, Opts: opts, ID: id})
	return telegram.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (c *fakeClient) SendDocument(_ context.Context, chatID int64, payload telegram.Payload, caption string, opts telegram.SendOptions) (telegram.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendDocumentFn != nil {
		if err := c.sendDocumentFn(chatID, payload, caption); err != nil {
			return telegram.MessageRef{}, err
		}
	}
	id := c.allocID()
	c.documents = append(c.documents, mediaSend{ChatID: chatID, Payload: payload, Caption: caption, Opts: opts, ID: id})
	return telegram.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (c *fakeClient) SendMediaGroup(_ context.Context, chatID int64, items []telegram.AlbumItem, opts telegram.SendOptions) ([]telegram.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendMediaGroupFn != nil {
		if err := c.sendMediaGroupFn(chatID, items); err != nil {
			return nil, err
		}
	}
	send := albumSend{ChatID: chatID, Items: items, Opts: opts}
	refs := make([]telegram.MessageRef, 0, len(items))
	for range items {
		id := c.allocID()
		send.IDs = append(send.IDs, id)
		refs = append(refs, telegram.MessageRef{ChatID: chatID, MessageID: id})
	}
	c.albums = append(c.albums, send)
	return refs, nil
}

// fakeStore keeps one snapshot in memory and applies field updates to it
// the way the Postgres store would.
type fakeStore struct {
	mu      gosync.Mutex
	snap    *tasks.Snapshot
	updates []tasks.FieldUpdate
	loadErr error
	saveErr error
}

func (s *fakeStore) LoadTask(_ context.Context, id uuid.UUID) (*tasks.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.snap == nil || s.snap.ID != id {
		return nil, tasks.ErrTaskNotFound
	}
	snap := *s.snap
	return &snap, nil
}

func (s *fakeStore) SaveSyncFields(_ context.Context, _ uuid.UUID, update tasks.FieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	if s.saveErr != nil {
		return s.saveErr
	}
	applyUpdate(&s.snap.Sync, update)
	return nil
}

func (s *fakeStore) syncState() tasks.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Sync
}

func (s *fakeStore) lastUpdate() tasks.FieldUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[len(s.updates)-1]
}

func applyUpdate(state *tasks.SyncState, update tasks.FieldUpdate) {
	for field, value := range update.Set {
		switch field {
		case tasks.FieldChatID:
			state.ChatID = value.(int64)
		case tasks.FieldChatMessageID:
			state.ChatMessageID = int(value.(int64))
		case tasks.FieldTopicID:
			state.TopicID = int(value.(int64))
		case tasks.FieldPreviewMessageIDs:
			state.PreviewMessageIDs = value.([]int)
		case tasks.FieldAttachmentMessageIDs:
			state.AttachmentMessageIDs = value.([]int)
		case tasks.FieldPhotosChatID:
			state.PhotosChatID = value.(int64)
		case tasks.FieldPhotosTopicID:
			state.PhotosTopicID = int(value.(int64))
		case tasks.FieldPhotosMessageID:
			state.PhotosMessageID = int(value.(int64))
		case tasks.FieldCommentMessageID:
			state.CommentMessageID = int(value.(int64))
		case tasks.FieldDirectMessageIDs:
			state.DirectMessages = value.(map[int64]int)
		}
	}
	for _, field := range update.Unset {
		switch field {
		case tasks.FieldChatID:
			state.ChatID = 0
		case tasks.FieldChatMessageID:
			state.ChatMessageID = 0
		case tasks.FieldTopicID:
			state.TopicID = 0
		case tasks.FieldPreviewMessageIDs:
			state.PreviewMessageIDs = nil
		case tasks.FieldAttachmentMessageIDs:
			state.AttachmentMessageIDs = nil
		case tasks.FieldPhotosChatID:
			state.PhotosChatID = 0
		case tasks.FieldPhotosTopicID:
			state.PhotosTopicID = 0
		case tasks.FieldPhotosMessageID:
			state.PhotosMessageID = 0
		case tasks.FieldCommentMessageID:
			state.CommentMessageID = 0
		case tasks.FieldDirectMessageIDs:
			state.DirectMessages = nil
		}
	}
}

type fakeDirectory struct {
	mu     gosync.Mutex
	people map[int64]directory.Person
	marked []int64
}

func (d *fakeDirectory) ResolveDisplayNames(_ context.Context, ids []int64) (map[int64]directory.Person, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int64]directory.Person, len(ids))
	for _, id := range ids {
		if person, ok := d.people[id]; ok {
			out[id] = person
		}
	}
	return out, nil
}

func (d *fakeDirectory) MarkBot(_ context.Context, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marked = append(d.marked, userID)
	if d.people == nil {
		d.people = map[int64]directory.Person{}
	}
	person := d.people[userID]
	person.IsBot = true
	d.people[userID] = person
	return nil
}

// staticFormatter maps snapshot fields straight through so tests control
// the rendered content via the snapshot itself.
type staticFormatter struct{}

func (staticFormatter) FormatTaskBody(task *tasks.Snapshot, _ map[int64]directory.Person) FormattedBody {
	return FormattedBody{Text: task.Title, Caption: task.Title, CommentText: task.Comment}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, client *fakeClient, store *fakeStore, dir *fakeDirectory, cfg Config) *Engine {
	t.Helper()
	resolver := media.NewResolver(nil, t.TempDir(), telegram.MaxPhotoBytes, testLogger())
	return NewEngine(testLogger(), client, store, dir, resolver, staticFormatter{}, cfg)
}

func newTask(title string) *tasks.Snapshot {
	return &tasks.Snapshot{ID: uuid.New(), Kind: "repair", Title: title, CreatorID: 1}
}

func imageAttachments(n int) []tasks.Attachment {
	atts := make([]tasks.Attachment, 0, n)
	for i := 0; i < n; i++ {
		atts = append(atts, tasks.Attachment{
			URL:  fmt.Sprintf("https://files.test/%d.jpg", i),
			Mime: "image/jpeg",
			Size: 100,
			Name: fmt.Sprintf("%d.jpg", i),
		})
	}
	return atts
}

// snapshotCopy freezes the current task content as the previous snapshot
// for change detection.
func snapshotCopy(store *fakeStore) *tasks.Snapshot {
	store.mu.Lock()
	defer store.mu.Unlock()
	snap := *store.snap
	return &snap
}

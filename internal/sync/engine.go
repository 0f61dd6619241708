// Package sync is the task→chat synchronization engine: given a task's
// current data and its previously recorded message identifiers, it decides
// which chat messages to create, edit, replace, or delete, and persists
// the new identifiers back onto the task record.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/fleetline/taskbridge/internal/directory"
	"github.com/fleetline/taskbridge/internal/media"
	"github.com/fleetline/taskbridge/internal/tasks"
	"github.com/fleetline/taskbridge/internal/telegram"
)

// FormattedBody is the already-rendered message content the engine
// delivers. Rendering task data into markup is the formatter's concern;
// the engine only decides where the content lands.
type FormattedBody struct {
	// Text is the full HTML message body.
	Text string
	// Caption is the album caption candidate.
	Caption string
	// CommentText is the rendered free-text comment, empty when the task
	// has none.
	CommentText string
	// InlineImages are stored-file ids or URLs of images embedded in the
	// body.
	InlineImages []string
}

// Formatter renders a task into deliverable message content.
type Formatter interface {
	FormatTaskBody(task *tasks.Snapshot, recipients map[int64]directory.Person) FormattedBody
}

// PhotosRoute directs a task kind's attachments to a distinct chat/topic.
type PhotosRoute struct {
	ChatID  int64
	TopicID int
}

// Config is the engine's delivery configuration.
type Config struct {
	// GroupChatID is the primary announcement chat; zero disables group
	// delivery (tasks then legitimately exist with no chat representation).
	GroupChatID int64
	// GroupTopicID optionally threads the main message into a forum topic.
	GroupTopicID int
	// PhotosRouting maps task kind to the chat receiving its attachments.
	PhotosRouting map[string]PhotosRoute
	// PublicBaseURL prefixes inline-view links for body images.
	PublicBaseURL string
}

// Request is one synchronization trigger.
type Request struct {
	TaskID uuid.UUID
	// ActorID is the user whose mutation triggered the pass; it is
	// excluded from direct-message fan-out.
	ActorID int64
	// Previous optionally carries the pre-mutation snapshot. When present
	// it drives change detection for the album/attachments slot; when nil
	// the media slots are rebuilt from scratch.
	Previous *tasks.Snapshot
}

// Engine drives reconciliation passes. Overlapping passes for the same
// task id serialize on a per-task lock; passes for different tasks run
// independently.
type Engine struct {
	logger    *slog.Logger
	client    telegram.Client
	store     tasks.Store
	directory directory.Directory
	media     *media.Resolver
	formatter Formatter
	cfg       Config
	locks     taskLocks
}

// NewEngine assembles the engine from its collaborators.
func NewEngine(log *slog.Logger, client telegram.Client, store tasks.Store, dir directory.Directory, resolver *media.Resolver, formatter Formatter, cfg Config) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		logger:    log.With(slog.String("service", "sync")),
		client:    client,
		store:     store,
		directory: dir,
		media:     resolver,
		formatter: formatter,
		cfg:       cfg,
		locks:     taskLocks{entries: map[uuid.UUID]*taskLock{}},
	}
}

// Synchronize runs one reconciliation pass. It is fire-and-forget from the
// caller's perspective: every failure is logged, none propagates back to
// the mutation that triggered it.
func (e *Engine) Synchronize(ctx context.Context, req Request) {
	log := e.logger.With(slog.String("task_id", req.TaskID.String()))
	unlock := e.locks.lock(req.TaskID)
	defer unlock()

	snap, err := e.store.LoadTask(ctx, req.TaskID)
	if err != nil {
		log.Error("load task failed", slog.Any("error", err))
		return
	}
	if snap.Deleted {
		e.teardown(ctx, log, snap)
		return
	}
	e.runPass(ctx, log, snap, req)
}

// Teardown issues best-effort deletions for every recorded message id and
// clears the task's sync fields, for use before the task record disappears.
func (e *Engine) Teardown(ctx context.Context, taskID uuid.UUID) {
	log := e.logger.With(slog.String("task_id", taskID.String()))
	unlock := e.locks.lock(taskID)
	defer unlock()

	snap, err := e.store.LoadTask(ctx, taskID)
	if err != nil {
		log.Error("load task failed", slog.Any("error", err))
		return
	}
	e.teardown(ctx, log, snap)
}

func (e *Engine) teardown(ctx context.Context, log *slog.Logger, snap *tasks.Snapshot) {
	prev := snap.Sync
	e.deleteAllRecorded(ctx, log, prev)
	if err := e.store.SaveSyncFields(ctx, snap.ID, tasks.ClearAll(prev)); err != nil {
		log.Error("clear sync fields failed", slog.Any("error", err))
	}
}

// deleteAllRecorded best-effort deletes every message a sync state refers
// to. Failures are logged; the ids are cleared regardless.
func (e *Engine) deleteAllRecorded(ctx context.Context, log *slog.Logger, prev tasks.SyncState) {
	refs := make([]telegram.MessageRef, 0, 8)
	if ref := prev.MainRef(); !ref.IsZero() {
		refs = append(refs, ref)
	}
	mediaChat := prev.MediaChatID()
	for _, id := range prev.PreviewMessageIDs {
		refs = append(refs, telegram.MessageRef{ChatID: mediaChat, MessageID: id})
	}
	for _, id := range prev.AttachmentMessageIDs {
		refs = append(refs, telegram.MessageRef{ChatID: mediaChat, MessageID: id})
	}
	if ref := prev.PhotosIntroRef(); !ref.IsZero() {
		refs = append(refs, ref)
	}
	if ref := prev.CommentRef(); !ref.IsZero() {
		refs = append(refs, ref)
	}
	for userID, messageID := range prev.DirectMessages {
		refs = append(refs, telegram.MessageRef{ChatID: userID, MessageID: messageID})
	}
	e.deleteRefs(ctx, log, refs)
}

func (e *Engine) deleteRefs(ctx context.Context, log *slog.Logger, refs []telegram.MessageRef) {
	for _, ref := range refs {
		if ref.IsZero() {
			continue
		}
		err := e.client.DeleteMessage(ctx, ref)
		if err == nil {
			continue
		}
		switch telegram.KindOf(err) {
		case telegram.KindMessageMissing:
			// Already gone out-of-band; the goal state holds.
		default:
			log.Warn("delete message failed",
				slog.Int64("chat_id", ref.ChatID),
				slog.Int("message_id", ref.MessageID),
				slog.Any("error", err))
		}
	}
}

// GroupDeepLink renders a t.me link to a message inside a supergroup.
func GroupDeepLink(ref telegram.MessageRef) string {
	internal := ref.ChatID
	if internal < 0 {
		internal = -internal
	}
	// Supergroup ids carry a -100 prefix that the link format drops.
	if internal >= 1_000_000_000_000 {
		internal -= 1_000_000_000_000
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", internal, ref.MessageID)
}

// taskLocks serializes passes per task id. Entries are reference-counted
// and dropped once idle so the map stays bounded by in-flight tasks.
type taskLocks struct {
	mu      gosync.Mutex
	entries map[uuid.UUID]*taskLock
}

type taskLock struct {
	mu   gosync.Mutex
	refs int
}

func (l *taskLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &taskLock{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

package sync

import (
	"context"
	"log/slog"

	"github.com/fleetline/taskbridge/internal/attachments"
	"github.com/fleetline/taskbridge/internal/directory"
	"github.com/fleetline/taskbridge/internal/media"
	"github.com/fleetline/taskbridge/internal/tasks"
	"github.com/fleetline/taskbridge/internal/telegram"
)

// pass carries the state of one reconciliation pass. The media cache and
// all intermediate results live here, never on the engine, so concurrent
// passes for different tasks cannot cross-contaminate.
type pass struct {
	engine *Engine
	log    *slog.Logger
	task   *tasks.Snapshot
	req    Request

	prev tasks.SyncState
	next tasks.SyncState

	body       FormattedBody
	bodyChunks []string
	set        attachments.Set
	cache      *media.Cache
	recipients map[int64]directory.Person

	// mediaChanged is true when the album/attachments content differs from
	// the previous snapshot (or no previous snapshot was provided).
	mediaChanged bool
	// dependentsTorn records that the prior dependent-slot messages were
	// already deleted because the main message was recreated.
	dependentsTorn bool
}

// runPass is the fan-out coordinator: group chat first, then the photos
// chat and comment thread (which depend on the resolved host message),
// then per-assignee direct messages last so they can embed a deep link.
// Each target is independent; a failure in a later target never discards
// committed results from an earlier one.
func (e *Engine) runPass(ctx context.Context, log *slog.Logger, snap *tasks.Snapshot, req Request) {
	p := &pass{
		engine: e,
		log:    log,
		task:   snap,
		req:    req,
		prev:   snap.Sync,
		next:   snap.Sync,
		cache:  media.NewCache(),
	}
	p.prepare(ctx)

	host, recreated, fatal := p.reconcileMain(ctx)
	if fatal != nil {
		// A fatal main-slot failure aborts dependent slots for the group
		// target; direct messages are independent deliveries and still run.
		log.Error("main slot failed, skipping dependent slots", slog.Any("error", fatal))
	} else if p.groupConfigured() {
		if recreated {
			p.tearDownDependents(ctx)
		}
		p.reconcileMedia(ctx, host)
		p.reconcileComment(ctx, host)
	}
	p.reconcileDirect(ctx, host)

	update := tasks.BuildUpdate(p.prev, p.next)
	if err := e.store.SaveSyncFields(ctx, snap.ID, update); err != nil {
		log.Error("persist sync fields failed", slog.Any("error", err))
	}
}

func (p *pass) prepare(ctx context.Context) {
	e := p.engine
	ids := make([]int64, 0, len(p.task.AssigneeIDs)+1)
	ids = append(ids, p.task.AssigneeIDs...)
	ids = append(ids, p.task.CreatorID)
	recipients, err := e.directory.ResolveDisplayNames(ctx, ids)
	if err != nil {
		p.log.Warn("resolve recipients failed", slog.Any("error", err))
		recipients = map[int64]directory.Person{}
	}
	p.recipients = recipients

	p.body = e.formatter.FormatTaskBody(p.task, recipients)
	p.bodyChunks = telegram.SplitByLimit(p.body.Text, telegram.MaxBodyLength)
	p.set = attachments.Normalize(p.task.Attachments, p.body.InlineImages,
		e.cfg.PublicBaseURL, telegram.MaxPhotoBytes, telegram.MaxAlbumSize)

	p.mediaChanged = true
	if prevSnap := p.req.Previous; prevSnap != nil {
		prevBody := e.formatter.FormatTaskBody(prevSnap, recipients)
		prevSet := attachments.Normalize(prevSnap.Attachments, prevBody.InlineImages,
			e.cfg.PublicBaseURL, telegram.MaxPhotoBytes, telegram.MaxAlbumSize)
		prevChunks := telegram.SplitByLimit(prevBody.Text, telegram.MaxBodyLength)
		p.mediaChanged = !sameAttachmentSet(prevSet, p.set) ||
			!sameOverflow(prevChunks, p.bodyChunks)
	}
}

func (p *pass) groupConfigured() bool {
	return p.engine.cfg.GroupChatID != 0 || p.prev.ChatID != 0
}

// groupChatID is the chat the main message lives in: sticky to the chat
// the previous pass used so edits target the right place.
func (p *pass) groupChatID() int64 {
	if p.prev.ChatID != 0 {
		return p.prev.ChatID
	}
	return p.engine.cfg.GroupChatID
}

func (p *pass) groupTopicID() int {
	if p.prev.TopicID != 0 {
		return p.prev.TopicID
	}
	return p.engine.cfg.GroupTopicID
}

// tearDownDependents deletes every dependent-slot message recorded by the
// previous pass. A recreated host message invalidates reply and thread
// linkage, so the album, extras, photos intro, and comment all go.
func (p *pass) tearDownDependents(ctx context.Context) {
	e := p.engine
	refs := make([]telegram.MessageRef, 0, 8)
	mediaChat := p.prev.MediaChatID()
	for _, id := range p.prev.PreviewMessageIDs {
		refs = append(refs, telegram.MessageRef{ChatID: mediaChat, MessageID: id})
	}
	for _, id := range p.prev.AttachmentMessageIDs {
		refs = append(refs, telegram.MessageRef{ChatID: mediaChat, MessageID: id})
	}
	if ref := p.prev.PhotosIntroRef(); !ref.IsZero() {
		refs = append(refs, ref)
	}
	if ref := p.prev.CommentRef(); !ref.IsZero() {
		refs = append(refs, ref)
	}
	e.deleteRefs(ctx, p.log, refs)
	p.next.PreviewMessageIDs = nil
	p.next.AttachmentMessageIDs = nil
	p.next.PhotosChatID = 0
	p.next.PhotosTopicID = 0
	p.next.PhotosMessageID = 0
	p.next.CommentMessageID = 0
	p.dependentsTorn = true
}

// sameAttachmentSet compares two normalized sets by kind+url sequence.
func sameAttachmentSet(a, b attachments.Set) bool {
	flatten := func(s attachments.Set) []attachments.Normalized {
		out := make([]attachments.Normalized, 0, len(s.Album)+len(s.Extras))
		out = append(out, s.Album...)
		out = append(out, s.Extras...)
		return out
	}
	left, right := flatten(a), flatten(b)
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i].Kind != right[i].Kind || left[i].URL != right[i].URL {
			return false
		}
	}
	return true
}

// sameOverflow compares the body chunks beyond the first, which are
// delivered alongside the attachments burst.
func sameOverflow(a, b []string) bool {
	aTail, bTail := tail(a), tail(b)
	if len(aTail) != len(bTail) {
		return false
	}
	for i := range aTail {
		if aTail[i] != bTail[i] {
			return false
		}
	}
	return true
}

func tail(chunks []string) []string {
	if len(chunks) <= 1 {
		return nil
	}
	return chunks[1:]
}

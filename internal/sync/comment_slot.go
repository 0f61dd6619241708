package sync

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fleetline/taskbridge/internal/telegram"
)

// reconcileComment resolves the comment slot: the rendered free-text
// comment lives in its own message threaded as a reply to the host.
//
// Empty content is equivalent to absent and deletes any prior message.
// Non-empty content without a host force-deletes a stale comment and
// leaves the slot absent. With a host present, an existing id is edited in
// place ("not modified" is success, "missing" means recreate), otherwise a
// reply to the host is created.
func (p *pass) reconcileComment(ctx context.Context, host telegram.MessageRef) {
	e := p.engine
	content := strings.TrimSpace(p.body.CommentText)

	prevRef := p.prev.CommentRef()
	if p.dependentsTorn {
		// The host was recreated; the old comment is already gone.
		prevRef = telegram.MessageRef{}
	}

	if content == "" {
		if !prevRef.IsZero() {
			e.deleteRefs(ctx, p.log, []telegram.MessageRef{prevRef})
		}
		p.next.CommentMessageID = 0
		return
	}

	if host.IsZero() {
		// No message to reply to; a comment may not dangle without a host.
		if !prevRef.IsZero() {
			e.deleteRefs(ctx, p.log, []telegram.MessageRef{prevRef})
		}
		p.next.CommentMessageID = 0
		return
	}

	if !prevRef.IsZero() {
		err := e.client.EditMessageText(ctx, prevRef, content, nil)
		switch telegram.KindOf(err) {
		case telegram.KindNotModified:
			err = nil
		}
		if err == nil {
			p.next.CommentMessageID = prevRef.MessageID
			return
		}
		if telegram.KindOf(err) != telegram.KindMessageMissing {
			// Unclassified edit failure: keep the last known state.
			p.log.Warn("comment edit failed",
				slog.Int("message_id", prevRef.MessageID), slog.Any("error", err))
			p.next.CommentMessageID = prevRef.MessageID
			return
		}
		// Removed out-of-band; fall through to recreate.
	}

	ref, err := e.client.SendMessage(ctx, host.ChatID, content, telegram.SendOptions{
		ReplyTo: host.MessageID,
	})
	if err != nil {
		p.log.Warn("send comment failed", slog.Any("error", err))
		p.next.CommentMessageID = 0
		return
	}
	p.next.CommentMessageID = ref.MessageID
}

package sync

import (
	"context"
	"log/slog"

	"github.com/fleetline/taskbridge/internal/telegram"
)

// reconcileMain resolves the main message slot. Returns the live host ref
// (zero when the slot ended absent), whether the message was recreated
// under a new id, and a fatal error when the group target could not be
// established at all.
//
// Slot policy: no prior id → create. Prior id → edit; "not modified" is
// success; any other edit failure deletes the previous message and
// recreates, except when deletion is forbidden, which falls back to an
// in-place edit that preserves the existing id.
func (p *pass) reconcileMain(ctx context.Context) (telegram.MessageRef, bool, error) {
	if !p.groupConfigured() {
		return telegram.MessageRef{}, false, nil
	}
	e := p.engine
	text := ""
	if len(p.bodyChunks) > 0 {
		text = p.bodyChunks[0]
	}
	prevRef := p.prev.MainRef()

	if prevRef.IsZero() {
		ref, err := p.createMain(ctx, text)
		if err != nil {
			return telegram.MessageRef{}, false, err
		}
		return ref, false, nil
	}

	err := e.client.EditMessageText(ctx, prevRef, text, nil)
	switch telegram.KindOf(err) {
	case telegram.KindNotModified:
		err = nil
	}
	if err == nil {
		p.recordMain(prevRef)
		return prevRef, false, nil
	}

	if telegram.KindOf(err) == telegram.KindMessageMissing {
		// Already removed out-of-band; nothing to delete.
		ref, createErr := p.createMain(ctx, text)
		if createErr != nil {
			p.clearMain()
			return telegram.MessageRef{}, false, createErr
		}
		return ref, true, nil
	}

	p.log.Info("main edit rejected, replacing message",
		slog.Int("message_id", prevRef.MessageID), slog.Any("error", err))
	deleteErr := e.client.DeleteMessage(ctx, prevRef)
	switch telegram.KindOf(deleteErr) {
	case telegram.KindMessageMissing:
		deleteErr = nil
	}
	if deleteErr == nil {
		ref, createErr := p.createMain(ctx, text)
		if createErr != nil {
			p.clearMain()
			return telegram.MessageRef{}, false, createErr
		}
		return ref, true, nil
	}
	if telegram.KindOf(deleteErr) == telegram.KindForbiddenToDelete {
		return p.editMainInPlace(ctx, prevRef, text), false, nil
	}
	// Unclassified delete failure: keep the last known state rather than
	// risk a duplicate main message.
	p.log.Error("main delete failed, keeping previous message",
		slog.Int("message_id", prevRef.MessageID), slog.Any("error", deleteErr))
	p.recordMain(prevRef)
	return prevRef, false, nil
}

// editMainInPlace is the forbidden-to-delete fallback: the id must
// survive, so only text (or caption, when the message carries media) is
// edited and any media stays untouched.
func (p *pass) editMainInPlace(ctx context.Context, ref telegram.MessageRef, text string) telegram.MessageRef {
	e := p.engine
	err := e.client.EditMessageText(ctx, ref, text, nil)
	if err != nil && telegram.KindOf(err) != telegram.KindNotModified {
		caption := telegram.TruncateCaption(text)
		captionErr := e.client.EditMessageCaption(ctx, ref, caption)
		if captionErr != nil && telegram.KindOf(captionErr) != telegram.KindNotModified {
			p.log.Warn("in-place fallback edit failed",
				slog.Int("message_id", ref.MessageID), slog.Any("error", captionErr))
		}
	}
	p.recordMain(ref)
	return ref
}

func (p *pass) createMain(ctx context.Context, text string) (telegram.MessageRef, error) {
	e := p.engine
	chatID := p.groupChatID()
	ref, err := e.client.SendMessage(ctx, chatID, text, telegram.SendOptions{
		TopicID: p.groupTopicID(),
	})
	if err != nil {
		return telegram.MessageRef{}, err
	}
	p.recordMain(ref)
	return ref, nil
}

func (p *pass) recordMain(ref telegram.MessageRef) {
	p.next.ChatID = ref.ChatID
	p.next.ChatMessageID = ref.MessageID
	p.next.TopicID = p.groupTopicID()
}

func (p *pass) clearMain() {
	p.next.ChatID = 0
	p.next.ChatMessageID = 0
	p.next.TopicID = 0
}

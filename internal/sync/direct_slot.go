package sync

import (
	"context"
	"log/slog"

	"github.com/fleetline/taskbridge/internal/telegram"
)

// reconcileDirect fans the task out to every assignee except the acting
// user as a personal message carrying a deep link to the group message.
// Each recipient is an independent delivery: a failure for one never
// blocks, retries, or rolls back another, and none of them touches the
// group-chat slots.
func (p *pass) reconcileDirect(ctx context.Context, host telegram.MessageRef) {
	e := p.engine

	wanted := make([]int64, 0, len(p.task.AssigneeIDs))
	seen := make(map[int64]bool, len(p.task.AssigneeIDs))
	for _, userID := range p.task.AssigneeIDs {
		if userID == 0 || userID == p.req.ActorID || seen[userID] {
			continue
		}
		seen[userID] = true
		wanted = append(wanted, userID)
	}

	text := ""
	if len(p.bodyChunks) > 0 {
		text = p.bodyChunks[0]
	}
	var keyboard [][]telegram.Button
	if !host.IsZero() {
		keyboard = [][]telegram.Button{{{Text: "Open in group chat", URL: GroupDeepLink(host)}}}
	}

	next := make(map[int64]int, len(wanted))
	for _, userID := range wanted {
		if person, ok := p.recipients[userID]; ok && person.IsBot {
			// Permanently excluded; the flag was persisted by an earlier pass.
			continue
		}
		prevID := p.prev.DirectMessages[userID]
		messageID := p.deliverDirect(ctx, userID, prevID, text, keyboard)
		if messageID != 0 {
			next[userID] = messageID
		}
	}

	// Personal copies for users no longer assigned (or now acting) go away.
	for userID, messageID := range p.prev.DirectMessages {
		if _, keep := next[userID]; keep {
			continue
		}
		if seen[userID] {
			// Still wanted but delivery failed this pass; already handled.
			continue
		}
		e.deleteRefs(ctx, p.log, []telegram.MessageRef{{ChatID: userID, MessageID: messageID}})
	}
	if len(next) == 0 {
		next = nil
	}
	p.next.DirectMessages = next
}

// deliverDirect reconciles one recipient's personal copy and returns the
// live message id, or zero when the slot ended absent.
func (p *pass) deliverDirect(ctx context.Context, userID int64, prevID int, text string, keyboard [][]telegram.Button) int {
	e := p.engine
	log := p.log.With(slog.Int64("user_id", userID))

	if prevID != 0 {
		ref := telegram.MessageRef{ChatID: userID, MessageID: prevID}
		err := e.client.EditMessageText(ctx, ref, text, keyboard)
		switch telegram.KindOf(err) {
		case telegram.KindNotModified:
			err = nil
		}
		if err == nil {
			return prevID
		}
		if telegram.KindOf(err) != telegram.KindMessageMissing {
			log.Warn("direct message edit failed", slog.Any("error", err))
			return prevID
		}
		// Removed out-of-band; recreate below.
	}

	ref, err := e.client.SendMessage(ctx, userID, text, telegram.SendOptions{Keyboard: keyboard})
	if err == nil {
		return ref.MessageID
	}
	switch telegram.KindOf(err) {
	case telegram.KindBotRecipient:
		// Freshly discovered bot account: persist the flag so future passes
		// skip this recipient without the lookup cost.
		if markErr := e.directory.MarkBot(ctx, userID); markErr != nil {
			log.Warn("persist bot flag failed", slog.Any("error", markErr))
		}
	case telegram.KindPeerUnavailable:
		// Never started a conversation with the bot; skipped, not flagged.
		log.Info("direct message recipient unreachable")
	default:
		log.Warn("direct message send failed", slog.Any("error", err))
	}
	return 0
}

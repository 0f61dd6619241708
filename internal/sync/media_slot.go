package sync

import (
	"context"
	"log/slog"

	"github.com/fleetline/taskbridge/internal/attachments"
	"github.com/fleetline/taskbridge/internal/telegram"
)

// reconcileMedia resolves the album/attachments slot and, when the task's
// kind routes attachments to a distinct photos chat, the photos-intro
// slot. The slot is rebuilt whole whenever its content changed or the
// host message was recreated; an unchanged slot keeps its recorded ids.
func (p *pass) reconcileMedia(ctx context.Context, host telegram.MessageRef) {
	if !p.mediaChanged && !p.dependentsTorn {
		return
	}
	if !p.dependentsTorn {
		p.tearDownMedia(ctx)
	}
	p.next.PreviewMessageIDs = nil
	p.next.AttachmentMessageIDs = nil
	p.next.PhotosChatID = 0
	p.next.PhotosTopicID = 0
	p.next.PhotosMessageID = 0

	overflow := tail(p.bodyChunks)
	if len(p.set.Album) == 0 && len(p.set.Extras) == 0 && len(overflow) == 0 {
		return
	}
	if host.IsZero() {
		return
	}

	// Body overflow chunks ride with the attachments burst, threaded under
	// the main message.
	for _, chunk := range overflow {
		ref, err := p.engine.client.SendMessage(ctx, host.ChatID, chunk, telegram.SendOptions{
			ReplyTo: host.MessageID,
		})
		if err != nil {
			p.log.Warn("send body continuation failed", slog.Any("error", err))
			continue
		}
		p.next.AttachmentMessageIDs = append(p.next.AttachmentMessageIDs, ref.MessageID)
	}

	route, distinct := p.photosRoute(host)
	anchor := host
	if distinct {
		intro := p.sendPhotosIntro(ctx, route, host)
		if !intro.IsZero() {
			anchor = intro
		}
	}

	opts := telegram.SendOptions{TopicID: route.TopicID}
	if anchor.ChatID == route.ChatID {
		opts.ReplyTo = anchor.MessageID
	}

	albumRefs := p.sendAlbum(ctx, route.ChatID, opts, p.set.Album)
	for _, ref := range albumRefs {
		p.next.PreviewMessageIDs = append(p.next.PreviewMessageIDs, ref.MessageID)
	}
	p.sendExtras(ctx, route.ChatID, opts)
}

// photosRoute decides where the task's media lands: a routing entry for
// the task kind wins, a photos chat recorded by a prior pass is honored
// next, and the host chat is the default.
func (p *pass) photosRoute(host telegram.MessageRef) (PhotosRoute, bool) {
	if route, ok := p.engine.cfg.PhotosRouting[p.task.Kind]; ok && route.ChatID != 0 {
		return route, route.ChatID != host.ChatID
	}
	if p.prev.PhotosChatID != 0 && p.prev.PhotosChatID != host.ChatID {
		return PhotosRoute{ChatID: p.prev.PhotosChatID, TopicID: p.prev.PhotosTopicID}, true
	}
	return PhotosRoute{ChatID: host.ChatID, TopicID: p.groupTopicID()}, false
}

// sendPhotosIntro posts the album's host message in the distinct photos
// chat, carrying a deep link back to the main message.
func (p *pass) sendPhotosIntro(ctx context.Context, route PhotosRoute, host telegram.MessageRef) telegram.MessageRef {
	text := p.body.Caption
	if text == "" {
		text = p.body.Text
	}
	text = telegram.TruncateCaption(text)
	ref, err := p.engine.client.SendMessage(ctx, route.ChatID, text, telegram.SendOptions{
		TopicID:  route.TopicID,
		Keyboard: [][]telegram.Button{{{Text: "Open task", URL: GroupDeepLink(host)}}},
	})
	if err != nil {
		p.log.Warn("send photos intro failed",
			slog.Int64("chat_id", route.ChatID), slog.Any("error", err))
		return telegram.MessageRef{}
	}
	p.next.PhotosChatID = route.ChatID
	p.next.PhotosTopicID = route.TopicID
	p.next.PhotosMessageID = ref.MessageID
	return ref
}

// sendAlbum delivers the album candidates: one standalone captioned photo
// for a single candidate, a single batch call for 2..10 when the caption
// fits the caption budget, and sequential singles as the fallback for
// oversized captions or a failed batch.
func (p *pass) sendAlbum(ctx context.Context, chatID int64, opts telegram.SendOptions, candidates []attachments.Normalized) []telegram.MessageRef {
	if len(candidates) == 0 {
		return nil
	}
	caption := telegram.TruncateCaption(p.body.Caption)
	if len(candidates) == 1 {
		ref, ok := p.sendOnePhoto(ctx, chatID, opts, candidates[0], caption)
		if !ok {
			return nil
		}
		return []telegram.MessageRef{ref}
	}
	if telegram.FitsCaption(p.body.Caption) {
		items := make([]telegram.AlbumItem, 0, len(candidates))
		for i, candidate := range candidates {
			item := telegram.AlbumItem{Media: p.resolve(ctx, candidate)}
			if i == 0 {
				item.Caption = caption
			}
			items = append(items, item)
		}
		refs, err := p.engine.client.SendMediaGroup(ctx, chatID, items, opts)
		if err == nil {
			return refs
		}
		p.log.Warn("album batch failed, falling back to singles", slog.Any("error", err))
	}
	refs := make([]telegram.MessageRef, 0, len(candidates))
	for i, candidate := range candidates {
		itemCaption := ""
		if i == 0 {
			itemCaption = caption
		}
		if ref, ok := p.sendOnePhoto(ctx, chatID, opts, candidate, itemCaption); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// sendOnePhoto sends a single photo; an unprocessable-media rejection is
// retried once as a document with the caption preserved.
func (p *pass) sendOnePhoto(ctx context.Context, chatID int64, opts telegram.SendOptions, att attachments.Normalized, caption string) (telegram.MessageRef, bool) {
	payload := p.resolve(ctx, att)
	ref, err := p.engine.client.SendPhoto(ctx, chatID, payload, caption, opts)
	if err == nil {
		return ref, true
	}
	if telegram.KindOf(err) == telegram.KindUnprocessableMedia {
		ref, docErr := p.engine.client.SendDocument(ctx, chatID, payload, caption, opts)
		if docErr == nil {
			return ref, true
		}
		p.log.Warn("document fallback failed", slog.String("url", att.URL), slog.Any("error", docErr))
		return telegram.MessageRef{}, false
	}
	p.log.Warn("send photo failed", slog.String("url", att.URL), slog.Any("error", err))
	return telegram.MessageRef{}, false
}

// sendExtras flushes the non-album attachments: leftover images in photo
// batches of up to the album maximum first, then documents and link cards
// individually, preserving source order within each class.
func (p *pass) sendExtras(ctx context.Context, chatID int64, opts telegram.SendOptions) {
	var images, others []attachments.Normalized
	for _, extra := range p.set.Extras {
		if extra.Kind == attachments.KindImage {
			images = append(images, extra)
		} else {
			others = append(others, extra)
		}
	}
	for start := 0; start < len(images); start += telegram.MaxAlbumSize {
		end := min(start+telegram.MaxAlbumSize, len(images))
		batch := images[start:end]
		if len(batch) == 1 {
			if ref, ok := p.sendOnePhoto(ctx, chatID, opts, batch[0], ""); ok {
				p.next.AttachmentMessageIDs = append(p.next.AttachmentMessageIDs, ref.MessageID)
			}
			continue
		}
		items := make([]telegram.AlbumItem, 0, len(batch))
		for _, img := range batch {
			items = append(items, telegram.AlbumItem{Media: p.resolve(ctx, img)})
		}
		refs, err := p.engine.client.SendMediaGroup(ctx, chatID, items, opts)
		if err != nil {
			p.log.Warn("extras batch failed, falling back to singles", slog.Any("error", err))
			for _, img := range batch {
				if ref, ok := p.sendOnePhoto(ctx, chatID, opts, img, ""); ok {
					p.next.AttachmentMessageIDs = append(p.next.AttachmentMessageIDs, ref.MessageID)
				}
			}
			continue
		}
		for _, ref := range refs {
			p.next.AttachmentMessageIDs = append(p.next.AttachmentMessageIDs, ref.MessageID)
		}
	}
	for _, extra := range others {
		var (
			ref telegram.MessageRef
			err error
		)
		switch extra.Kind {
		case attachments.KindYouTube:
			ref, err = p.engine.client.SendMessage(ctx, chatID, extra.URL, telegram.SendOptions{
				TopicID:    opts.TopicID,
				ReplyTo:    opts.ReplyTo,
				WebPreview: true,
			})
		default:
			caption := telegram.EscapeHTML(extra.Name)
			ref, err = p.engine.client.SendDocument(ctx, chatID, p.resolve(ctx, extra), caption, opts)
		}
		if err != nil {
			p.log.Warn("send extra failed",
				slog.String("kind", string(extra.Kind)),
				slog.String("url", extra.URL),
				slog.Any("error", err))
			continue
		}
		p.next.AttachmentMessageIDs = append(p.next.AttachmentMessageIDs, ref.MessageID)
	}
}

// tearDownMedia deletes the prior album, extras, and photos-intro messages.
func (p *pass) tearDownMedia(ctx context.Context) {
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
	p.engine.deleteRefs(ctx, p.log, refs)
}

func (p *pass) resolve(ctx context.Context, att attachments.Normalized) telegram.Payload {
	return p.engine.media.Resolve(ctx, p.cache, att)
}

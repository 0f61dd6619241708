// Package telegram is a thin client over the Telegram Bot API used by the
// synchronization engine. It exposes a small send/edit/delete surface with
// a closed error taxonomy so slot handlers never inspect raw API errors.
package telegram

// MessageRef identifies one delivered message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether the ref points at no message.
func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

// Payload is a sendable media payload: either a remote URL the platform
// fetches itself, or a local file to upload.
type Payload struct {
	URL         string
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// IsLocal reports whether the payload uploads from disk.
func (p Payload) IsLocal() bool {
	return p.Path != ""
}

// AlbumItem is one entry of a media-group send.
type AlbumItem struct {
	Media   Payload
	Caption string
}

// Button is a single inline-keyboard button with a URL action.
type Button struct {
	Text string
	URL  string
}

// SendOptions carries per-send routing details.
type SendOptions struct {
	TopicID             int
	ReplyTo             int
	DisableNotification bool
	// WebPreview enables the link preview card, used for video links.
	WebPreview bool
	Keyboard   [][]Button
}

// MaxAlbumSize is the platform cap on media items per sendMediaGroup call.
const MaxAlbumSize = 10

// MaxPhotoBytes is the platform cap on a single photo upload before the
// media resolver must recompress.
const MaxPhotoBytes int64 = 10 * 1024 * 1024

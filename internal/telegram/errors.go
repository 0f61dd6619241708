package telegram

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrorKind is the closed classification of platform failures. Slot
// handlers branch on kinds only; the raw API error is decoded exactly once
// here at the client boundary.
type ErrorKind int

const (
	// KindOther is any unclassified or transport failure.
	KindOther ErrorKind = iota
	// KindNotModified: an edit was rejected because nothing changed.
	KindNotModified
	// KindMessageMissing: the edit/delete target no longer exists.
	KindMessageMissing
	// KindForbiddenToDelete: deletion denied by permissions or message age.
	KindForbiddenToDelete
	// KindUnprocessableMedia: the platform refused the media payload.
	KindUnprocessableMedia
	// KindBotRecipient: the recipient is a bot account and can never be messaged.
	KindBotRecipient
	// KindPeerUnavailable: the recipient has not started a conversation with
	// the bot, blocked it, or the chat does not exist.
	KindPeerUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotModified:
		return "not_modified"
	case KindMessageMissing:
		return "message_missing"
	case KindForbiddenToDelete:
		return "forbidden_to_delete"
	case KindUnprocessableMedia:
		return "unprocessable_media"
	case KindBotRecipient:
		return "bot_recipient"
	case KindPeerUnavailable:
		return "peer_unavailable"
	default:
		return "other"
	}
}

// ClassifiedError wraps a platform error with its taxonomy kind.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// KindOf returns the classified kind of err, or KindOther for nil-safe use
// on unclassified errors.
func KindOf(err error) ErrorKind {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindOther
}

var unprocessableMarkers = []string{
	"wrong file identifier",
	"wrong type of the web page content",
	"failed to get http url content",
	"photo_invalid_dimensions",
	"image_process_failed",
	"photo should be uploaded",
	"wrong remote file identifier",
}

// Classify decodes a raw Bot API error into the closed taxonomy. Non-API
// errors (transport, context) stay KindOther.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		var valErr tgbotapi.Error
		if !errors.As(err, &valErr) {
			return &ClassifiedError{Kind: KindOther, Err: err}
		}
		apiErr = &valErr
	}
	msg := strings.ToLower(apiErr.Message)
	switch apiErr.Code {
	case 400:
		switch {
		case strings.Contains(msg, "message is not modified"):
			return &ClassifiedError{Kind: KindNotModified, Err: err}
		case strings.Contains(msg, "message to edit not found"),
			strings.Contains(msg, "message to delete not found"),
			strings.Contains(msg, "message identifier is not specified"),
			strings.Contains(msg, "message not found"):
			return &ClassifiedError{Kind: KindMessageMissing, Err: err}
		case strings.Contains(msg, "message can't be deleted"):
			return &ClassifiedError{Kind: KindForbiddenToDelete, Err: err}
		case strings.Contains(msg, "chat not found"):
			return &ClassifiedError{Kind: KindPeerUnavailable, Err: err}
		}
		for _, marker := range unprocessableMarkers {
			if strings.Contains(msg, marker) {
				return &ClassifiedError{Kind: KindUnprocessableMedia, Err: err}
			}
		}
	case 403:
		switch {
		case strings.Contains(msg, "bots can't send messages to bots"):
			return &ClassifiedError{Kind: KindBotRecipient, Err: err}
		case strings.Contains(msg, "can't initiate conversation"),
			strings.Contains(msg, "bot was blocked by the user"),
			strings.Contains(msg, "user is deactivated"):
			return &ClassifiedError{Kind: KindPeerUnavailable, Err: err}
		case strings.Contains(msg, "message can't be deleted"),
			strings.Contains(msg, "not enough rights"):
			return &ClassifiedError{Kind: KindForbiddenToDelete, Err: err}
		}
	}
	return &ClassifiedError{Kind: KindOther, Err: err}
}

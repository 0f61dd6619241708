// Package tasks defines the task snapshot consumed by the synchronization
// engine and the persistence of its chat-message sync state.
package tasks

import (
	"errors"

	"github.com/google/uuid"

	"github.com/fleetline/taskbridge/internal/telegram"
)

var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")
)

// Attachment is one file attached to a task, as declared by the uploader.
// Size and Mime are declared values; nothing here has been fetched yet.
type Attachment struct {
	URL    string `json:"url"`
	Mime   string `json:"mime"`
	Size   int64  `json:"size"`
	Name   string `json:"name"`
	FileID string `json:"file_id,omitempty"`
}

// Snapshot is the engine's read view of a task at the moment a mutation
// triggered a reconciliation pass.
type Snapshot struct {
	ID          uuid.UUID
	Kind        string
	Title       string
	Comment     string
	CreatorID   int64
	AssigneeIDs []int64
	Attachments []Attachment
	Deleted     bool
	Sync        SyncState
}

// SyncState holds the previously recorded chat-message identifiers for
// every slot. Zero values mean the slot is absent.
type SyncState struct {
	ChatID               int64
	ChatMessageID        int
	TopicID              int
	PreviewMessageIDs    []int
	AttachmentMessageIDs []int
	PhotosChatID         int64
	PhotosTopicID        int
	PhotosMessageID      int
	CommentMessageID     int
	// DirectMessages maps assignee user id to the personal copy's message id.
	DirectMessages map[int64]int
}

// MainRef returns the recorded main message ref, zero when absent.
func (s SyncState) MainRef() telegram.MessageRef {
	if s.ChatMessageID == 0 {
		return telegram.MessageRef{}
	}
	return telegram.MessageRef{ChatID: s.ChatID, MessageID: s.ChatMessageID}
}

// CommentRef returns the recorded comment message ref, zero when absent.
func (s SyncState) CommentRef() telegram.MessageRef {
	if s.CommentMessageID == 0 {
		return telegram.MessageRef{}
	}
	return telegram.MessageRef{ChatID: s.ChatID, MessageID: s.CommentMessageID}
}

// PhotosIntroRef returns the recorded photos-intro ref, zero when absent.
func (s SyncState) PhotosIntroRef() telegram.MessageRef {
	if s.PhotosMessageID == 0 {
		return telegram.MessageRef{}
	}
	return telegram.MessageRef{ChatID: s.PhotosChatID, MessageID: s.PhotosMessageID}
}

// MediaChatID returns the chat the album and extras were previously sent
// to: the photos chat when one was recorded, otherwise the main chat.
func (s SyncState) MediaChatID() int64 {
	if s.PhotosChatID != 0 {
		return s.PhotosChatID
	}
	return s.ChatID
}

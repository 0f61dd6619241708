package tasks

// Field names one persisted sync-state column.
type Field string

const (
	FieldChatID               Field = "chat_id"
	FieldChatMessageID        Field = "chat_message_id"
	FieldTopicID              Field = "topic_id"
	FieldPreviewMessageIDs    Field = "preview_message_ids"
	FieldAttachmentMessageIDs Field = "attachment_message_ids"
	FieldPhotosChatID         Field = "photos_chat_id"
	FieldPhotosTopicID        Field = "photos_topic_id"
	FieldPhotosMessageID      Field = "photos_message_id"
	FieldCommentMessageID     Field = "comment_message_id"
	FieldDirectMessageIDs     Field = "direct_message_ids"
)

// FieldUpdate is a single set/unset document update against a task's sync
// columns. It is applied once per pass, after all network work.
type FieldUpdate struct {
	Set   map[Field]any
	Unset []Field
}

// IsEmpty reports whether the update would change nothing.
func (u FieldUpdate) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0
}

// BuildUpdate computes the minimal update that moves prev to next: a slot
// that is live in next is set when it changed, a slot that ended absent is
// explicitly unset when prev had it.
func BuildUpdate(prev, next SyncState) FieldUpdate {
	update := FieldUpdate{Set: map[Field]any{}}

	setInt64 := func(f Field, prevVal, nextVal int64) {
		switch {
		case nextVal != 0 && nextVal != prevVal:
			update.Set[f] = nextVal
		case nextVal == 0 && prevVal != 0:
			update.Unset = append(update.Unset, f)
		}
	}
	setInt := func(f Field, prevVal, nextVal int) {
		setInt64(f, int64(prevVal), int64(nextVal))
	}
	setInts := func(f Field, prevVal, nextVal []int) {
		switch {
		case len(nextVal) > 0 && !equalInts(prevVal, nextVal):
			update.Set[f] = nextVal
		case len(nextVal) == 0 && len(prevVal) > 0:
			update.Unset = append(update.Unset, f)
		}
	}

	setInt64(FieldChatID, prev.ChatID, next.ChatID)
	setInt(FieldChatMessageID, prev.ChatMessageID, next.ChatMessageID)
	setInt(FieldTopicID, prev.TopicID, next.TopicID)
	setInts(FieldPreviewMessageIDs, prev.PreviewMessageIDs, next.PreviewMessageIDs)
	setInts(FieldAttachmentMessageIDs, prev.AttachmentMessageIDs, next.AttachmentMessageIDs)
	setInt64(FieldPhotosChatID, prev.PhotosChatID, next.PhotosChatID)
	setInt(FieldPhotosTopicID, prev.PhotosTopicID, next.PhotosTopicID)
	setInt(FieldPhotosMessageID, prev.PhotosMessageID, next.PhotosMessageID)
	setInt(FieldCommentMessageID, prev.CommentMessageID, next.CommentMessageID)

	switch {
	case len(next.DirectMessages) > 0 && !equalDirect(prev.DirectMessages, next.DirectMessages):
		update.Set[FieldDirectMessageIDs] = next.DirectMessages
	case len(next.DirectMessages) == 0 && len(prev.DirectMessages) > 0:
		update.Unset = append(update.Unset, FieldDirectMessageIDs)
	}
	return update
}

// ClearAll returns an update that unsets every sync column prev recorded.
func ClearAll(prev SyncState) FieldUpdate {
	return BuildUpdate(prev, SyncState{})
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalDirect(a, b map[int64]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

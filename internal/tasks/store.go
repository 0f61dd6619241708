package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the task data provider the engine reconciles against.
type Store interface {
	// LoadTask returns the current snapshot, or ErrTaskNotFound.
	LoadTask(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	// SaveSyncFields applies one set/unset update to the task's sync columns.
	SaveSyncFields(ctx context.Context, id uuid.UUID, update FieldUpdate) error
}

// PGStore implements Store over Postgres.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore creates a Postgres-backed task store.
func NewPGStore(pool *pgxpool.Pool, log *slog.Logger) *PGStore {
	if log == nil {
		log = slog.Default()
	}
	return &PGStore{
		pool:   pool,
		logger: log.With(slog.String("service", "tasks")),
	}
}

const loadTaskQuery = `
SELECT id, kind, title, body_comment, creator_id, assignee_ids, attachments, deleted,
       COALESCE(chat_id, 0), COALESCE(chat_message_id, 0), COALESCE(topic_id, 0),
       COALESCE(preview_message_ids, '{}'), COALESCE(attachment_message_ids, '{}'),
       COALESCE(photos_chat_id, 0), COALESCE(photos_topic_id, 0), COALESCE(photos_message_id, 0),
       COALESCE(comment_message_id, 0), COALESCE(direct_message_ids, '{}')
FROM tasks WHERE id = $1`

func (s *PGStore) LoadTask(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	var (
		snap           Snapshot
		attachmentsRaw []byte
		previewIDs     []int32
		attachmentIDs  []int32
		directRaw      []byte
	)
	row := s.pool.QueryRow(ctx, loadTaskQuery, id)
	err := row.Scan(
		&snap.ID, &snap.Kind, &snap.Title, &snap.Comment, &snap.CreatorID,
		&snap.AssigneeIDs, &attachmentsRaw, &snap.Deleted,
		&snap.Sync.ChatID, &snap.Sync.ChatMessageID, &snap.Sync.TopicID,
		&previewIDs, &attachmentIDs,
		&snap.Sync.PhotosChatID, &snap.Sync.PhotosTopicID, &snap.Sync.PhotosMessageID,
		&snap.Sync.CommentMessageID, &directRaw,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	if len(attachmentsRaw) > 0 {
		if err := json.Unmarshal(attachmentsRaw, &snap.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	snap.Sync.PreviewMessageIDs = toInts(previewIDs)
	snap.Sync.AttachmentMessageIDs = toInts(attachmentIDs)
	direct, err := decodeDirectMessages(directRaw)
	if err != nil {
		return nil, err
	}
	snap.Sync.DirectMessages = direct
	return &snap, nil
}

func (s *PGStore) SaveSyncFields(ctx context.Context, id uuid.UUID, update FieldUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	assignments := make([]string, 0, len(update.Set)+len(update.Unset))
	args := []any{id}
	for _, field := range orderedFields {
		value, ok := update.Set[field]
		if !ok {
			continue
		}
		args = append(args, encodeFieldValue(field, value))
		assignments = append(assignments, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	for _, field := range update.Unset {
		assignments = append(assignments, string(field)+" = NULL")
	}
	query := "UPDATE tasks SET " + strings.Join(assignments, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save sync fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// orderedFields fixes the assignment order so generated SQL is stable.
var orderedFields = []Field{
	FieldChatID, FieldChatMessageID, FieldTopicID,
	FieldPreviewMessageIDs, FieldAttachmentMessageIDs,
	FieldPhotosChatID, FieldPhotosTopicID, FieldPhotosMessageID,
	FieldCommentMessageID, FieldDirectMessageIDs,
}

func encodeFieldValue(field Field, value any) any {
	switch field {
	case FieldPreviewMessageIDs, FieldAttachmentMessageIDs:
		if ids, ok := value.([]int); ok {
			return toInt32s(ids)
		}
	case FieldDirectMessageIDs:
		if direct, ok := value.(map[int64]int); ok {
			encoded := make(map[string]int, len(direct))
			for userID, messageID := range direct {
				encoded[strconv.FormatInt(userID, 10)] = messageID
			}
			payload, _ := json.Marshal(encoded)
			return payload
		}
	}
	return value
}

func decodeDirectMessages(raw []byte) (map[int64]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var encoded map[string]int
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("decode direct message ids: %w", err)
	}
	if len(encoded) == 0 {
		return nil, nil
	}
	direct := make(map[int64]int, len(encoded))
	for key, messageID := range encoded {
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode direct message ids: bad user id %q", key)
		}
		direct[userID] = messageID
	}
	return direct, nil
}

func toInts(values []int32) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

func toInt32s(values []int) []int32 {
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return out
}

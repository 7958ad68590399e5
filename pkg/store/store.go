package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/utils"
	"chatledger/pkg/validation"

	"github.com/cockroachdb/pebble"
)

// Store is a durable conversation ledger on top of a Pebble database.
// One log of messages is kept per thread, ordered by insertion. All
// read-modify-write operations are serialized by the store mutex so
// concurrent appends never lose writes; plain reads go straight to
// pebble and may observe a stale snapshot.
//
// Key layout:
//
//	thread:<threadID>:msg:<unix_nano_padded>-<seq>   message record
//	thread:<threadID>:meta                           thread bookkeeping
//
// The atomic seq breaks ties when multiple messages land on the same
// nanosecond, keeping key order equal to insertion order.
type Store struct {
	mu   sync.Mutex
	db   *pebble.DB
	path string
	seq  uint64
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying pebble DB if present.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func msgPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":msg:")
}

func metaKey(threadID string) []byte {
	return []byte("thread:" + threadID + ":meta")
}

func (s *Store) msgKey(threadID string, ts int64) []byte {
	n := atomic.AddUint64(&s.seq, 1)
	return []byte(fmt.Sprintf("thread:%s:msg:%020d-%06d", threadID, ts, n))
}

// AppendMessage validates the draft, assigns id/timestamp/read defaults,
// appends it to the thread's log and persists it. The thread is created
// implicitly on first append. The returned message is the stored record.
//
// Read defaults: user-authored messages are always stored read=true (a
// user need not read their own message); counterparty messages keep the
// draft's flag, which lets the greeting seed arrive pre-read while
// ordinary synthetic replies default to unread.
func (s *Store) AppendMessage(threadID string, draft models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return models.Message{}, fmt.Errorf("store not opened; call store.Open first")
	}
	draft.Thread = threadID
	if err := validation.ValidateMessage(draft); err != nil {
		return models.Message{}, err
	}
	if draft.ID == "" {
		draft.ID = utils.GenID()
	}

	meta, hadMeta, err := s.loadMeta(threadID)
	if err != nil {
		return models.Message{}, err
	}

	now := time.Now().UTC().UnixNano()
	if draft.TS == 0 {
		draft.TS = now
	}
	// timestamps never regress within a thread
	if draft.TS < meta.LastTS {
		draft.TS = meta.LastTS
	}
	if draft.Sender == models.SenderUser {
		draft.Read = true
	}

	data, err := json.Marshal(draft)
	if err != nil {
		storeFaults.Inc()
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	if !hadMeta {
		meta.CreatedTS = draft.TS
	}
	meta.UpdatedTS = draft.TS
	meta.LastTS = draft.TS
	metaData, err := json.Marshal(meta)
	if err != nil {
		storeFaults.Inc()
		return models.Message{}, fmt.Errorf("failed to marshal thread meta: %w", err)
	}

	// message and meta commit together; a failed append leaves neither
	key := s.msgKey(threadID, draft.TS)
	batch := s.db.NewBatch()
	if err := batch.Set(key, data, nil); err != nil {
		storeFaults.Inc()
		_ = batch.Close()
		return models.Message{}, err
	}
	if err := batch.Set(metaKey(threadID), metaData, nil); err != nil {
		storeFaults.Inc()
		_ = batch.Close()
		return models.Message{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		storeFaults.Inc()
		logger.Error("append_message_failed", "thread", threadID, "key", string(key), "error", err)
		return models.Message{}, err
	}

	messagesAppended.WithLabelValues(string(draft.Sender)).Inc()
	logger.Info("message_appended", "thread", threadID, "id", draft.ID, "sender", string(draft.Sender))
	return draft, nil
}

// ListMessages returns all messages for a thread in insertion order. An
// unknown thread yields an empty slice, never an error. The mutex is
// held for the scan so a concurrent Close cannot pull the handle away
// mid-iteration.
func (s *Store) ListMessages(threadID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMessagesLocked(threadID)
}

func (s *Store) listMessagesLocked(threadID string) ([]models.Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := msgPrefix(threadID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := []models.Message{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			storeFaults.Inc()
			logger.Error("list_invalid_message_json", "thread", threadID, "key", string(iter.Key()), "error", err)
			return nil, fmt.Errorf("invalid message record: %w", err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// UpdateMessage merges patch into the message with the given id. It
// reports false when the thread or message does not exist and never
// creates new messages.
func (s *Store) UpdateMessage(threadID, msgID string, patch models.MessagePatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false, fmt.Errorf("store not opened; call store.Open first")
	}
	key, m, err := s.findMessageLocked(threadID, msgID)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, nil
	}
	if patch.Body != nil {
		m.Body = *patch.Body
	}
	if patch.Read != nil {
		m.Read = *patch.Read
	}
	data, err := json.Marshal(m)
	if err != nil {
		storeFaults.Inc()
		return false, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		storeFaults.Inc()
		logger.Error("update_message_failed", "thread", threadID, "id", msgID, "error", err)
		return false, err
	}
	logger.Info("message_updated", "thread", threadID, "id", msgID)
	return true, nil
}

// DeleteMessage removes exactly one message from the thread's log,
// leaving all other messages and their order untouched. It reports
// false when the thread or message does not exist.
func (s *Store) DeleteMessage(threadID, msgID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false, fmt.Errorf("store not opened; call store.Open first")
	}
	key, _, err := s.findMessageLocked(threadID, msgID)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, nil
	}
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		storeFaults.Inc()
		logger.Error("delete_message_failed", "thread", threadID, "id", msgID, "error", err)
		return false, err
	}
	messagesDeleted.Inc()
	logger.Info("message_deleted", "thread", threadID, "id", msgID)
	return true, nil
}

// ClearThread removes the thread entirely: its log and its meta record.
// It reports false when the thread did not exist. A cleared thread is
// indistinguishable from one that never existed.
func (s *Store) ClearThread(threadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false, fmt.Errorf("store not opened; call store.Open first")
	}
	return s.clearThreadLocked(threadID)
}

func (s *Store) clearThreadLocked(threadID string) (bool, error) {
	prefix := msgPrefix(threadID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return false, err
	}
	var keys [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return false, err
	}

	_, hadMeta, err := s.loadMeta(threadID)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 && !hadMeta {
		return false, nil
	}
	for _, k := range keys {
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			storeFaults.Inc()
			logger.Error("clear_thread_failed", "thread", threadID, "error", err)
			return false, err
		}
	}
	if hadMeta {
		if err := s.db.Delete(metaKey(threadID), pebble.Sync); err != nil {
			storeFaults.Inc()
			return false, err
		}
	}
	logger.Info("thread_cleared", "thread", threadID, "messages", len(keys))
	return true, nil
}

// ResetAll empties the entire store.
func (s *Store) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	return s.resetAllLocked()
}

func (s *Store) resetAllLocked() error {
	prefix := []byte("thread:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	var keys [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			storeFaults.Inc()
			return err
		}
	}
	logger.Info("store_reset", "keys", len(keys))
	return nil
}

// UnreadCount returns the number of counterparty messages not yet read.
func (s *Store) UnreadCount(threadID string) (int, error) {
	msgs, err := s.ListMessages(threadID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.Sender == models.SenderCounterparty && !m.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead sets read=true on all messages of the thread, or only on the
// given ids when ids is non-empty. A missing thread is a no-op.
func (s *Store) MarkRead(threadID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	var idset map[string]struct{}
	if len(ids) > 0 {
		idset = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			idset[id] = struct{}{}
		}
	}
	prefix := msgPrefix(threadID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	type pending struct {
		key  []byte
		data []byte
	}
	var writes []pending
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			storeFaults.Inc()
			_ = iter.Close()
			return fmt.Errorf("invalid message record: %w", err)
		}
		if m.Read {
			continue
		}
		if idset != nil {
			if _, ok := idset[m.ID]; !ok {
				continue
			}
		}
		m.Read = true
		data, err := json.Marshal(m)
		if err != nil {
			storeFaults.Inc()
			_ = iter.Close()
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		writes = append(writes, pending{key: append([]byte(nil), iter.Key()...), data: data})
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, p := range writes {
		if err := s.db.Set(p.key, p.data, pebble.Sync); err != nil {
			storeFaults.Inc()
			logger.Error("mark_read_failed", "thread", threadID, "error", err)
			return err
		}
	}
	if len(writes) > 0 {
		logger.Info("messages_marked_read", "thread", threadID, "count", len(writes))
	}
	return nil
}

// SearchMessages returns messages whose body contains query, compared
// case-insensitively, preserving log order. An empty query matches every
// message; callers that want different behavior must special-case it.
func (s *Store) SearchMessages(threadID, query string) ([]models.Message, error) {
	msgs, err := s.ListMessages(threadID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	out := []models.Message{}
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Body), q) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Statistics summarizes the thread's log. An unknown thread yields the
// zero document with nil first/last timestamps.
func (s *Store) Statistics(threadID string) (models.Statistics, error) {
	msgs, err := s.ListMessages(threadID)
	if err != nil {
		return models.Statistics{}, err
	}
	var st models.Statistics
	st.TotalMessages = len(msgs)
	for _, m := range msgs {
		switch m.Sender {
		case models.SenderUser:
			st.UserMessages++
		case models.SenderCounterparty:
			st.CounterpartyMessages++
			if !m.Read {
				st.UnreadCount++
			}
		}
		if len(m.Attachments) > 0 {
			st.MessagesWithAttachments++
		}
	}
	if len(msgs) > 0 {
		first, last := msgs[0].TS, msgs[len(msgs)-1].TS
		st.FirstTimestamp = &first
		st.LastTimestamp = &last
	}
	return st, nil
}

// ListThreads returns meta records for all threads in the store.
func (s *Store) ListThreads() ([]models.ThreadMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listThreadsLocked()
}

func (s *Store) listThreadsLocked() ([]models.ThreadMeta, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte("thread:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := []models.ThreadMeta{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := string(iter.Key())
		if !strings.HasPrefix(k, "thread:") {
			break
		}
		if !strings.HasSuffix(k, ":meta") {
			continue
		}
		var meta models.ThreadMeta
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			storeFaults.Inc()
			return nil, fmt.Errorf("invalid thread meta: %w", err)
		}
		out = append(out, meta)
	}
	return out, iter.Error()
}

func (s *Store) loadMeta(threadID string) (models.ThreadMeta, bool, error) {
	v, closer, err := s.db.Get(metaKey(threadID))
	if err == pebble.ErrNotFound {
		return models.ThreadMeta{ID: threadID}, false, nil
	}
	if err != nil {
		return models.ThreadMeta{}, false, err
	}
	defer closer.Close()
	var meta models.ThreadMeta
	if err := json.Unmarshal(v, &meta); err != nil {
		storeFaults.Inc()
		return models.ThreadMeta{}, false, fmt.Errorf("invalid thread meta: %w", err)
	}
	return meta, true, nil
}

func (s *Store) saveMetaLocked(meta models.ThreadMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		storeFaults.Inc()
		return fmt.Errorf("failed to marshal thread meta: %w", err)
	}
	if err := s.db.Set(metaKey(meta.ID), data, pebble.Sync); err != nil {
		storeFaults.Inc()
		logger.Error("save_thread_meta_failed", "thread", meta.ID, "error", err)
		return err
	}
	return nil
}

// findMessageLocked scans the thread's log for a message id and returns
// its storage key and decoded record; a nil key means not found.
func (s *Store) findMessageLocked(threadID, msgID string) ([]byte, models.Message, error) {
	prefix := msgPrefix(threadID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, models.Message{}, err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			storeFaults.Inc()
			return nil, models.Message{}, fmt.Errorf("invalid message record: %w", err)
		}
		if m.ID == msgID {
			return append([]byte(nil), iter.Key()...), m, nil
		}
	}
	return nil, models.Message{}, iter.Error()
}

package simulator

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/store"
)

// ErrEmptyMessage is returned for a send with no text and no attachments.
var ErrEmptyMessage = errors.New("empty message: no text and no attachments")

// ErrTooManyAttachments is returned when a send exceeds the attachment cap.
var ErrTooManyAttachments = fmt.Errorf("too many attachments: limit is %d", models.MaxAttachments)

// placeholderBody replaces an empty body when attachments are present.
const placeholderBody = "Shared photos"

const defaultGreeting = "Hi! I'm {name}. I received your booking request. How can I help you today?"
const anonymousGreeting = "Hi! I received your booking request. How can I help you today?"

// Config controls reply latency and greeting content.
type Config struct {
	// MinReplyDelay / MaxReplyDelay bound the randomized synthetic reply
	// latency. Zero values select 2s..3s.
	MinReplyDelay time.Duration
	MaxReplyDelay time.Duration
	// Greeting template; "{name}" is substituted with the counterparty
	// display name. Empty selects the default.
	Greeting string
}

func (c *Config) delays() (time.Duration, time.Duration) {
	mn, mx := c.MinReplyDelay, c.MaxReplyDelay
	if mn <= 0 {
		mn = 2 * time.Second
	}
	if mx < mn {
		mx = mn + time.Second
	}
	return mn, mx
}

// session is the transient per-thread interaction state: the set of
// armed reply timers keyed by token. A thread with a non-empty timer set
// is awaiting at least one reply; the typing flag is the count of
// outstanding tokens, not a boolean, so overlapping sends do not
// deactivate it prematurely.
type session struct {
	timers map[uint64]*time.Timer
}

// Simulator emulates a live counterparty over a conversation store. The
// store owns everything durable; the simulator holds only per-thread
// session state, discarded when the thread view closes.
type Simulator struct {
	store *store.Store
	cfg   Config

	mu       sync.Mutex
	rng      *rand.Rand
	tokenSeq uint64
	active   string
	sessions map[string]*session
}

// New returns a Simulator writing through st.
func New(st *store.Store, cfg Config) *Simulator {
	return &Simulator{
		store:    st,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]*session),
	}
}

// OpenThread makes threadID the active thread and returns its log. A
// thread with no prior messages is seeded with exactly one counterparty
// greeting, stored pre-read since it is shown immediately; reopening
// never re-seeds. The mutex is held across the emptiness check and the
// seed, so concurrent opens of a fresh thread cannot both observe an
// empty log and double-seed. Opening a different thread cancels any
// replies still pending for the previously active one.
func (s *Simulator) OpenThread(threadID, displayName string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" && s.active != threadID {
		s.cancelLocked(s.active)
	}
	s.active = threadID

	msgs, err := s.store.ListMessages(threadID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	greeting, err := s.store.AppendMessage(threadID, models.Message{
		Sender: models.SenderCounterparty,
		Body:   s.greetingFor(displayName),
		Read:   true,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("thread_seeded", "thread", threadID)
	return []models.Message{greeting}, nil
}

// CloseThread discards the thread's session state, cancelling any armed
// reply timers. Already-persisted messages are unaffected; the forfeited
// replies are simply never generated.
func (s *Simulator) CloseThread(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(threadID)
	if s.active == threadID {
		s.active = ""
	}
}

// Close cancels every armed timer across all threads.
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sessions {
		s.cancelLocked(id)
	}
	s.active = ""
}

// SendMessage appends a user message and schedules a synthetic reply.
// Each send arms its own independent timer; sending while a reply is
// already pending neither cancels nor reorders the outstanding one.
func (s *Simulator) SendMessage(threadID, text string, attachments []models.Attachment) (models.Message, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return models.Message{}, ErrEmptyMessage
	}
	if len(attachments) > models.MaxAttachments {
		return models.Message{}, ErrTooManyAttachments
	}
	body := text
	if strings.TrimSpace(body) == "" {
		body = placeholderBody
	}
	msg, err := s.store.AppendMessage(threadID, models.Message{
		Sender:      models.SenderUser,
		Body:        body,
		Attachments: attachments,
	})
	if err != nil {
		return models.Message{}, err
	}
	s.scheduleReply(threadID, len(attachments) > 0)
	return msg, nil
}

// Typing reports whether at least one synthetic reply is pending for the
// thread.
func (s *Simulator) Typing(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[threadID]
	return sess != nil && len(sess.timers) > 0
}

func (s *Simulator) scheduleReply(threadID string, withAttachments bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mn, mx := s.cfg.delays()
	delay := mn
	if span := mx - mn; span > 0 {
		delay += time.Duration(s.rng.Int63n(int64(span)))
	}
	s.tokenSeq++
	token := s.tokenSeq
	sess := s.sessions[threadID]
	if sess == nil {
		sess = &session{timers: make(map[uint64]*time.Timer)}
		s.sessions[threadID] = sess
	}
	sess.timers[token] = time.AfterFunc(delay, func() {
		s.deliver(threadID, token, withAttachments)
	})
	logger.Debug("reply_scheduled", "thread", threadID, "token", token, "delay", delay)
}

// deliver runs on timer expiry. A token no longer present in the session
// was cancelled between arming and firing; its reply is forfeited.
func (s *Simulator) deliver(threadID string, token uint64, withAttachments bool) {
	s.mu.Lock()
	sess := s.sessions[threadID]
	if sess == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := sess.timers[token]; !ok {
		s.mu.Unlock()
		return
	}
	delete(sess.timers, token)
	if len(sess.timers) == 0 {
		delete(s.sessions, threadID)
	}
	pool := genericReplies
	if withAttachments {
		pool = attachmentReplies
	}
	body := pool[s.rng.Intn(len(pool))]
	s.mu.Unlock()

	if _, err := s.store.AppendMessage(threadID, models.Message{
		Sender: models.SenderCounterparty,
		Body:   body,
	}); err != nil {
		logger.Error("reply_append_failed", "thread", threadID, "error", err)
		return
	}
	logger.Info("reply_delivered", "thread", threadID, "token", token)
}

func (s *Simulator) cancelLocked(threadID string) {
	sess := s.sessions[threadID]
	if sess == nil {
		return
	}
	for token, t := range sess.timers {
		t.Stop()
		delete(sess.timers, token)
	}
	delete(s.sessions, threadID)
	logger.Debug("replies_cancelled", "thread", threadID)
}

func (s *Simulator) greetingFor(displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return anonymousGreeting
	}
	tpl := s.cfg.Greeting
	if tpl == "" {
		tpl = defaultGreeting
	}
	return strings.ReplaceAll(tpl, "{name}", name)
}

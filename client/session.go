package client

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chitchat-service/client/cache"
	"chitchat-service/internal/assistant"
	"chitchat-service/internal/models"
)

// ErrDeliveryUnconfirmed is returned by Send when the durable write fails
// after the message has already been rendered locally. It is non-fatal: the
// caller surfaces a warning and the entry stays visible (or is rolled back,
// per Options.RollbackOnSendFailure).
var ErrDeliveryUnconfirmed = errors.New("delivery unconfirmed")

// EntryState tracks whether a conversation entry has been acknowledged by
// the server.
type EntryState int

const (
	// Pending entries exist only on this device: rendered optimistically,
	// not yet (or never) confirmed durable.
	Pending EntryState = iota
	// Confirmed entries carry the server's canonical row.
	Confirmed
)

// Entry is one slot of the rendered conversation. LocalID is stable across
// the pending-to-confirmed transition so the UI can key on it.
type Entry struct {
	LocalID string         `json:"local_id"`
	State   EntryState     `json:"state"`
	Message models.Message `json:"message"`
}

// Options tunes session behavior.
type Options struct {
	// RollbackOnSendFailure removes the optimistic entry when the durable
	// write fails instead of keeping it on screen. Default keeps it: the
	// user said it, losing it silently is worse than showing it unconfirmed.
	RollbackOnSendFailure bool

	// MentionDelay is how long after a mention-bearing send the assistant
	// trigger fires. Zero means the 1s default.
	MentionDelay time.Duration

	// ContextWindow caps how many recent entries accompany an assistant
	// trigger. Zero means the default of 10.
	ContextWindow int
}

const (
	defaultMentionDelay  = time.Second
	defaultContextWindow = 10
)

// Session is one user's view of one open group conversation. It renders
// sends optimistically, reconciles pushed events into the local sequence,
// and mirrors everything into the device cache.
type Session struct {
	api      *API
	cache    *cache.Cache
	userID   int
	userName string
	opts     Options

	mu        sync.Mutex
	groupID   int
	connID    string
	entries   []Entry
	clearedAt time.Time
	replyTo   *ReplyContext
	online    []int
}

// NewSession builds a session for the given user.
func NewSession(api *API, c *cache.Cache, userID int, userName string, opts Options) *Session {
	if opts.MentionDelay <= 0 {
		opts.MentionDelay = defaultMentionDelay
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaultContextWindow
	}
	return &Session{
		api:      api,
		cache:    c,
		userID:   userID,
		userName: userName,
		opts:     opts,
	}
}

// OpenGroup makes groupID the active conversation: cached entries render
// first, then the server list replaces the confirmed portion. Pending
// entries the server does not know about survive the refresh.
func (s *Session) OpenGroup(ctx context.Context, groupID int) error {
	s.mu.Lock()
	s.groupID = groupID
	s.entries = nil
	s.clearedAt = time.Time{}

	var cached []Entry
	if err := s.cache.GetJSON(cache.MessagesKey(s.userID, groupID), &cached); err == nil {
		s.entries = cached
	}
	var clearedAt time.Time
	if err := s.cache.GetJSON(cache.ClearedAtKey(s.userID, groupID), &clearedAt); err == nil {
		s.clearedAt = clearedAt
	}
	s.mu.Unlock()

	msgs, err := s.api.ListMessages(ctx, groupID)
	if err != nil {
		// cached view stands until the next successful fetch
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Entry
	for _, e := range s.entries {
		if e.State == Pending {
			pending = append(pending, e)
		}
	}

	entries := make([]Entry, 0, len(msgs)+len(pending))
	for _, m := range msgs {
		entries = append(entries, Entry{LocalID: uuid.NewString(), State: Confirmed, Message: m})
	}
	entries = append(entries, pending...)
	s.entries = entries
	s.persistLocked()
	return nil
}

// SetReply attaches a quoted context to the next Send.
func (s *Session) SetReply(reply ReplyContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTo = &reply
}

// Send renders text immediately as a pending entry, then attempts the
// durable write. On success the same slot holds the canonical message; on
// failure the entry stays pending (or is removed, per options) and
// ErrDeliveryUnconfirmed is returned. A mention of the assistant schedules
// the trigger after a short delay; the reply arrives as a pushed event.
func (s *Session) Send(ctx context.Context, text string) (Entry, error) {
	s.mu.Lock()
	groupID := s.groupID
	connID := s.connID
	reply := s.replyTo
	s.replyTo = nil

	entry := Entry{
		LocalID: "tmp-" + uuid.NewString(),
		State:   Pending,
		Message: models.Message{
			GroupID:    groupID,
			SenderID:   s.userID,
			SenderName: s.userName,
			Content:    text,
			CreatedAt:  time.Now(),
		},
	}
	if reply != nil {
		entry.Message.ReplyToSender = &reply.SenderName
		entry.Message.ReplyToSnippet = &reply.Snippet
	}
	s.entries = append(s.entries, entry)
	s.persistLocked()
	s.mu.Unlock()

	req := SendMessageRequest{Content: text, ConnectionID: connID}
	if reply != nil {
		req.ReplyTo = reply
	}

	canonical, err := s.api.SendMessage(ctx, groupID, req)

	s.mu.Lock()
	idx := s.indexOfLocked(entry.LocalID)

	if err != nil {
		if s.opts.RollbackOnSendFailure && idx >= 0 {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		}
		s.persistLocked()
		result := entry
		if idx >= 0 && !s.opts.RollbackOnSendFailure {
			result = s.entries[idx]
		}
		s.mu.Unlock()
		return result, ErrDeliveryUnconfirmed
	}

	// the server does not echo reply context it was not asked to store
	if canonical.ReplyToSender == nil && entry.Message.ReplyToSender != nil {
		canonical.ReplyToSender = entry.Message.ReplyToSender
		canonical.ReplyToSnippet = entry.Message.ReplyToSnippet
	}

	confirmed := Entry{LocalID: entry.LocalID, State: Confirmed, Message: canonical}
	if idx >= 0 {
		s.entries[idx] = confirmed
	} else {
		s.entries = append(s.entries, confirmed)
	}
	s.persistLocked()
	s.setLastMessageLocked(groupID, canonical)
	s.mu.Unlock()

	if strings.Contains(strings.ToLower(text), assistant.MentionToken) {
		s.scheduleAssistantTrigger(groupID)
	}
	return confirmed, nil
}

func (s *Session) scheduleAssistantTrigger(groupID int) {
	time.AfterFunc(s.opts.MentionDelay, func() {
		transcript := s.recentTranscript()
		if len(transcript) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.api.TriggerAssistant(ctx, groupID, transcript); err != nil {
			log.Printf("assistant trigger failed: %v", err)
		}
	})
}

func (s *Session) recentTranscript() []assistant.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := s.visibleLocked()
	if len(visible) > s.opts.ContextWindow {
		visible = visible[len(visible)-s.opts.ContextWindow:]
	}

	transcript := make([]assistant.ChatMessage, 0, len(visible))
	for _, e := range visible {
		role := "user"
		if e.Message.IsAI {
			role = "assistant"
		}
		transcript = append(transcript, assistant.ChatMessage{
			Role:    role,
			Name:    e.Message.SenderName,
			Content: e.Message.Content,
		})
	}
	return transcript
}

// HandleEvent folds a pushed websocket event into the session. Messages from
// the local user are dropped: the send path already rendered them, and the
// server only pushes them back to the user's other connections.
func (s *Session) HandleEvent(event models.GroupEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case models.EventConnected:
		s.connID = event.ConnectionID

	case models.EventPresence:
		s.online = event.Online

	case models.EventMessage:
		if event.Message == nil {
			return
		}
		msg := *event.Message
		if msg.DeletedForUser(s.userID) {
			return
		}
		s.setLastMessageLocked(msg.GroupID, msg)
		if msg.GroupID != s.groupID {
			return
		}
		if msg.SenderID == s.userID {
			return
		}
		s.entries = append(s.entries, Entry{
			LocalID: uuid.NewString(),
			State:   Confirmed,
			Message: msg,
		})
		s.persistLocked()
	}
}

// Messages returns the visible conversation: entries created after the
// cleared-at watermark, in arrival order.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// Online returns the most recent presence snapshot.
func (s *Session) Online() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.online))
	copy(out, s.online)
	return out
}

// ConnectionID returns the id assigned by the server on connect, empty
// before the connected event arrives.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// ClearConversation empties the local view of the open group without any
// server contact. Other participants and other devices are unaffected; new
// messages accumulate after the watermark.
func (s *Session) ClearConversation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearedAt = time.Now()
	s.entries = nil

	if err := s.cache.SetJSON(cache.ClearedAtKey(s.userID, s.groupID), s.clearedAt); err != nil {
		return err
	}
	if err := s.cache.Delete(cache.MessagesKey(s.userID, s.groupID)); err != nil {
		return err
	}
	return s.cache.Delete(cache.LastMessageKey(s.groupID))
}

// SoftDelete hides a message server-side for this user, then drops it from
// the local sequence. Nothing is broadcast.
func (s *Session) SoftDelete(ctx context.Context, messageID int) error {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()

	if err := s.api.DeleteForMe(ctx, groupID, messageID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.State == Confirmed && e.Message.ID == messageID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.persistLocked()
	return nil
}

// Forward copies a message of the open group into each target group and
// returns the per-target outcomes.
func (s *Session) Forward(ctx context.Context, messageID int, targetGroupIDs []int) ([]ForwardOutcome, error) {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	return s.api.Forward(ctx, groupID, messageID, targetGroupIDs)
}

// Pin marks a group so GroupList sorts it first. Pinning is device-local.
func (s *Session) Pin(groupID int) error {
	return s.setPinned(groupID, true)
}

// Unpin removes the device-local pin.
func (s *Session) Unpin(groupID int) error {
	return s.setPinned(groupID, false)
}

func (s *Session) setPinned(groupID int, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int
	_ = s.cache.GetJSON(cache.PinnedKey(s.userID), &ids)

	out := ids[:0]
	for _, id := range ids {
		if id != groupID {
			out = append(out, id)
		}
	}
	if pinned {
		out = append(out, groupID)
	}
	return s.cache.SetJSON(cache.PinnedKey(s.userID), out)
}

// GroupEntry is one row of the conversation list.
type GroupEntry struct {
	models.Group
	Pinned      bool            `json:"pinned"`
	LastMessage *models.Message `json:"last_message,omitempty"`
}

// GroupList returns the user's groups for the conversation list. The cached
// last-message pointer wins when present; the server-provided one is the
// fallback. Pinned groups sort first, then by last activity, newest first.
func (s *Session) GroupList(ctx context.Context) ([]GroupEntry, error) {
	groups, err := s.api.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pinnedIDs []int
	_ = s.cache.GetJSON(cache.PinnedKey(s.userID), &pinnedIDs)
	pinned := make(map[int]bool, len(pinnedIDs))
	for _, id := range pinnedIDs {
		pinned[id] = true
	}

	entries := make([]GroupEntry, 0, len(groups))
	for _, g := range groups {
		entry := GroupEntry{Group: g.Group, Pinned: pinned[g.ID], LastMessage: g.LastMessage}
		var cachedLast models.Message
		if err := s.cache.GetJSON(cache.LastMessageKey(g.ID), &cachedLast); err == nil {
			entry.LastMessage = &cachedLast
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Pinned != entries[j].Pinned {
			return entries[i].Pinned
		}
		return lastActivity(entries[i]).After(lastActivity(entries[j]))
	})
	return entries, nil
}

func lastActivity(e GroupEntry) time.Time {
	if e.LastMessage != nil {
		return e.LastMessage.CreatedAt
	}
	return e.CreatedAt
}

func (s *Session) visibleLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Message.CreatedAt.After(s.clearedAt) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Session) indexOfLocked(localID string) int {
	for i, e := range s.entries {
		if e.LocalID == localID {
			return i
		}
	}
	return -1
}

func (s *Session) persistLocked() {
	if err := s.cache.SetJSON(cache.MessagesKey(s.userID, s.groupID), s.entries); err != nil {
		log.Printf("cache persist failed: %v", err)
	}
}

func (s *Session) setLastMessageLocked(groupID int, msg models.Message) {
	if err := s.cache.SetJSON(cache.LastMessageKey(groupID), msg); err != nil {
		log.Printf("cache persist failed: %v", err)
	}
}

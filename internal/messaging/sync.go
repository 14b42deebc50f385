package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskhub/api/internal/realtime"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

// UnknownSender is shown when a push arrives for a sender whose name cannot be resolved.
const UnknownSender = "Unknown user"

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSynced  State = "synced"
)

type Delivery string

const (
	DeliveryLocalOnly Delivery = "local-only"
	DeliveryPending   Delivery = "pending"
	DeliveryConfirmed Delivery = "confirmed"
	DeliveryRejected  Delivery = "rejected"
)

var deliveryTransitions = map[Delivery][]Delivery{
	DeliveryLocalOnly: {DeliveryPending},
	DeliveryPending:   {DeliveryConfirmed, DeliveryRejected},
}

// CanTransition reports whether an outbound message may move from one delivery state to another.
func CanTransition(from, to Delivery) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Entry struct {
	store.Message
	Delivery Delivery
}

// Subscriber opens push subscriptions. Service satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID, viewerID string) (realtime.Subscription, error)
}

// Synchronizer holds a single viewer's conversation list and the message list of the one
// conversation they have open.
type Synchronizer struct {
	backend    Backend
	subscriber Subscriber
	viewerID   string
	now        func() time.Time
	newTempID  func() string
	onAppend   func(Entry)

	mu            sync.Mutex
	active        string
	generation    uint64
	state         State
	entries       []Entry
	conversations []store.Conversation
	names         map[string]string
	cancelPush    context.CancelFunc
	// pushed remembers rows merged from pushes so a fetch that started before they were written
	// does not drop them.
	pushed  []pushedRow
	pushSeq uint64
}

type pushedRow struct {
	seq uint64
	msg store.Message
}

type Option func(*Synchronizer)

func WithSubscriber(sub Subscriber) Option {
	return func(s *Synchronizer) { s.subscriber = sub }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithAppendHook is called, outside the lock, for every pushed row that is added to the list.
func WithAppendHook(fn func(Entry)) Option {
	return func(s *Synchronizer) { s.onAppend = fn }
}

func NewSynchronizer(backend Backend, viewerID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		backend:   backend,
		viewerID:  viewerID,
		now:       time.Now,
		newTempID: util.NewTempID,
		state:     StateIdle,
		names:     map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a copy of the open conversation's list in presentation order.
func (s *Synchronizer) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Synchronizer) Conversations() []store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

func (s *Synchronizer) RefreshConversations(ctx context.Context) error {
	items, err := s.backend.ListConversations(ctx, s.viewerID)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	s.mu.Lock()
	s.conversations = items
	s.mu.Unlock()
	return nil
}

// Open makes conversationID the active selection, loads its history, marks it read and, when a
// Subscriber is configured, starts following pushes. Results for a selection that is no longer
// active when they arrive are discarded.
func (s *Synchronizer) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.cancelPush != nil {
		s.cancelPush()
		s.cancelPush = nil
	}
	s.active = conversationID
	s.generation++
	gen := s.generation
	s.state = StateLoading
	s.entries = nil
	s.pushed = nil
	s.mu.Unlock()

	if s.subscriber != nil {
		if err := s.follow(ctx, conversationID, gen); err != nil {
			return err
		}
	}

	if err := s.reload(ctx, conversationID, gen); err != nil {
		return err
	}
	s.mu.Lock()
	current := s.generation == gen
	s.mu.Unlock()
	if !current {
		return nil
	}

	if err := s.backend.MarkRead(ctx, conversationID, s.viewerID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].UnreadCount = 0
		}
	}
	s.mu.Unlock()
	return nil
}

// Close unsubscribes and returns to idle.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelPush != nil {
		s.cancelPush()
		s.cancelPush = nil
	}
	s.active = ""
	s.generation++
	s.state = StateIdle
	s.entries = nil
	s.pushed = nil
}

func (s *Synchronizer) follow(ctx context.Context, conversationID string, gen uint64) error {
	pushCtx, cancel := context.WithCancel(ctx)
	sub, err := s.subscriber.Subscribe(pushCtx, conversationID, s.viewerID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		cancel()
		_ = sub.Close()
		return nil
	}
	s.cancelPush = cancel
	s.mu.Unlock()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-pushCtx.Done():
				return
			case row, ok := <-sub.Events():
				if !ok {
					return
				}
				s.HandlePush(pushCtx, row.Message())
			}
		}
	}()
	return nil
}

// reload replaces the list with the backend's authoritative rows if gen is still current.
func (s *Synchronizer) reload(ctx context.Context, conversationID string, gen uint64) error {
	s.mu.Lock()
	startSeq := s.pushSeq
	s.mu.Unlock()

	rows, err := s.backend.ListMessages(ctx, conversationID, s.viewerID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.active != conversationID {
		return nil
	}
	fetched := make(map[string]struct{}, len(rows))
	entries := make([]Entry, 0, len(rows))
	for _, m := range rows {
		if m.HiddenFrom(s.viewerID) {
			continue
		}
		if m.SenderName != "" {
			s.names[m.SenderID] = m.SenderName
		}
		fetched[m.ID] = struct{}{}
		entries = append(entries, Entry{Message: m, Delivery: DeliveryConfirmed})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	s.entries = entries

	kept := s.pushed[:0]
	for _, p := range s.pushed {
		if p.seq <= startSeq {
			continue
		}
		kept = append(kept, p)
		if _, ok := fetched[p.msg.ID]; !ok {
			s.insertOrdered(Entry{Message: p.msg, Delivery: DeliveryConfirmed})
		}
	}
	s.pushed = kept
	s.state = StateSynced
	return nil
}

// Send appends an optimistic entry, creates the message, then re-fetches the list whether or not
// the create succeeded. The create error, if any, is returned after the re-fetch.
func (s *Synchronizer) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	if s.active == "" {
		s.mu.Unlock()
		return ErrNoConversation
	}
	conversationID := s.active
	gen := s.generation
	tempID := s.newTempID()
	s.insertOrdered(Entry{
		Message: store.Message{
			ID:               tempID,
			ConversationID:   conversationID,
			SenderID:         s.viewerID,
			SenderName:       s.names[s.viewerID],
			Text:             text,
			CreatedAt:        s.now(),
			DeletedByUserIDs: []string{},
		},
		Delivery: DeliveryLocalOnly,
	})
	s.transition(tempID, DeliveryPending)
	s.mu.Unlock()

	created, sendErr := s.backend.CreateMessage(ctx, conversationID, s.viewerID, text)

	s.mu.Lock()
	if sendErr != nil {
		s.transition(tempID, DeliveryRejected)
	} else {
		s.transition(tempID, DeliveryConfirmed)
		s.bumpConversation(conversationID, created.CreatedAt)
	}
	s.mu.Unlock()

	if err := s.reload(ctx, conversationID, gen); err != nil {
		if sendErr != nil {
			return errors.Join(fmt.Errorf("send message: %w", sendErr), err)
		}
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("send message: %w", sendErr)
	}
	return nil
}

func (s *Synchronizer) DeleteForMe(ctx context.Context, messageID string) error {
	conversationID, gen, err := s.activeSelection()
	if err != nil {
		return err
	}
	if err := s.backend.DeleteForMe(ctx, messageID, s.viewerID); err != nil {
		_ = s.reload(ctx, conversationID, gen)
		return fmt.Errorf("delete message: %w", err)
	}
	return s.reload(ctx, conversationID, gen)
}

// DeleteForEveryone is refused locally when the viewer did not send the message.
func (s *Synchronizer) DeleteForEveryone(ctx context.Context, messageID string) error {
	conversationID, gen, err := s.activeSelection()
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, e := range s.entries {
		if e.ID == messageID && e.SenderID != s.viewerID {
			s.mu.Unlock()
			return ErrNotSender
		}
	}
	s.mu.Unlock()

	if err := s.backend.DeleteForEveryone(ctx, messageID, s.viewerID); err != nil {
		_ = s.reload(ctx, conversationID, gen)
		return fmt.Errorf("delete message: %w", err)
	}
	return s.reload(ctx, conversationID, gen)
}

// HandlePush merges one pushed row. Rows for another conversation, rows hidden from the viewer
// and rows already present are ignored. A row matching a pending optimistic send confirms it.
func (s *Synchronizer) HandlePush(ctx context.Context, row store.Message) {
	s.mu.Lock()
	if s.active == "" || row.ConversationID != s.active {
		s.mu.Unlock()
		return
	}
	if row.HiddenFrom(s.viewerID) {
		s.mu.Unlock()
		return
	}
	for _, e := range s.entries {
		if e.ID == row.ID {
			s.mu.Unlock()
			return
		}
	}
	s.bumpConversation(row.ConversationID, row.CreatedAt)

	gen := s.generation
	name, known := s.names[row.SenderID]
	if !known {
		name = UnknownSender
	}
	if row.SenderName == "" {
		row.SenderName = name
	} else {
		known = true
	}
	s.pushSeq++
	s.pushed = append(s.pushed, pushedRow{seq: s.pushSeq, msg: row})

	for i := range s.entries {
		e := &s.entries[i]
		if e.Delivery == DeliveryPending && e.SenderID == row.SenderID && e.Text == row.Text {
			e.Delivery = DeliveryConfirmed
			e.ID = row.ID
			s.mu.Unlock()
			return
		}
	}

	entry := Entry{Message: row, Delivery: DeliveryConfirmed}
	s.insertOrdered(entry)
	s.mu.Unlock()

	if !known {
		s.resolveName(ctx, row.ID, row.SenderID, gen)
	}
	if s.onAppend != nil {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.ID == row.ID {
				entry = e
			}
		}
		s.mu.Unlock()
		s.onAppend(entry)
	}
}

func (s *Synchronizer) resolveName(ctx context.Context, messageID, senderID string, gen uint64) {
	name, err := s.backend.UserName(ctx, senderID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			logrus.WithError(err).WithField("sender_id", senderID).Debug("sender name lookup failed")
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[senderID] = name
	if s.generation != gen {
		return
	}
	for i := range s.entries {
		if s.entries[i].ID == messageID {
			s.entries[i].SenderName = name
		}
	}
	for i := range s.pushed {
		if s.pushed[i].msg.ID == messageID {
			s.pushed[i].msg.SenderName = name
		}
	}
}

func (s *Synchronizer) activeSelection() (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return "", 0, ErrNoConversation
	}
	return s.active, s.generation, nil
}

// insertOrdered places e after every entry with created_at <= e's, so earlier entries never move.
// Caller holds mu.
func (s *Synchronizer) insertOrdered(e Entry) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].CreatedAt.After(e.CreatedAt)
	})
	s.entries = append(s.entries, Entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

// transition moves the entry with id to the next delivery state when allowed. Caller holds mu.
func (s *Synchronizer) transition(id string, to Delivery) bool {
	for i := range s.entries {
		if s.entries[i].ID != id {
			continue
		}
		if !CanTransition(s.entries[i].Delivery, to) {
			return false
		}
		s.entries[i].Delivery = to
		return true
	}
	return false
}

// bumpConversation advances last_message_at and keeps the list newest first. Caller holds mu.
func (s *Synchronizer) bumpConversation(conversationID string, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	for i := range s.conversations {
		c := &s.conversations[i]
		if c.ID != conversationID {
			continue
		}
		if c.LastMessageAt == nil || at.After(*c.LastMessageAt) {
			t := at
			c.LastMessageAt = &t
		}
	}
	sort.SliceStable(s.conversations, func(i, j int) bool {
		a, b := s.conversations[i].LastMessageAt, s.conversations[j].LastMessageAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}

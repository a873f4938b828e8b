// Package order implements per-stream ordered delivery: a reassembly
// buffer for out-of-order messages, duplicate suppression, gap tracking
// with retransmission requests, and an acknowledgement ledger, per
// spec.md §4.7 and §3's StreamState.
package order

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/1mb-dev/resiliencekit/internal/clock"
)

// NewMessageID generates an opaque identifier suitable for Message.ID, for
// callers that don't already have a natural message key (e.g. producing
// synthetic traffic, or a transport that doesn't assign one itself).
func NewMessageID() string { return uuid.NewString() }

// Message is one inbound unit carried by a stream (spec.md §3).
type Message struct {
	ID             string
	SequenceNumber uint64
	Type           string
	Payload        interface{}
	Timestamp      time.Time
	RequiresAck    bool
}

// EventKind identifies the shape of an Event emitted by a Stream.
type EventKind int

const (
	EventDeliver EventKind = iota
	EventDuplicate
	EventLate
	EventBuffered
	EventMissing
	EventRequestRetransmission
	EventBufferOverflow
	EventAckSent
	EventAckTimeout
	EventRecovered
)

func (k EventKind) String() string {
	switch k {
	case EventDeliver:
		return "deliver"
	case EventDuplicate:
		return "duplicate"
	case EventLate:
		return "late"
	case EventBuffered:
		return "buffered"
	case EventMissing:
		return "missing"
	case EventRequestRetransmission:
		return "requestRetransmission"
	case EventBufferOverflow:
		return "bufferOverflow"
	case EventAckSent:
		return "ackSent"
	case EventAckTimeout:
		return "ackTimeout"
	case EventRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// Event is one signal emitted by a Stream, consumed off Stream.Events().
type Event struct {
	Kind           EventKind
	MessageID      string
	SequenceNumber uint64
	Message        Message
	At             time.Time
}

// Config parameterizes a Stream.
type Config struct {
	Name string
	// BaseSeq is the first sequence number the stream expects. Defaults
	// to 1 if zero.
	BaseSeq uint64
	// BufferCapacity bounds the reorder buffer (B in spec.md §3). On
	// overflow the highest-seq buffered entry is evicted (spec.md §9
	// "buffer-overflow policy" decision: drop newest).
	BufferCapacity int
	// SeenIDCapacity bounds the duplicate-suppression LRU (spec.md §9
	// "duplicate-id memory" redesign note). Defaults to 4x
	// BufferCapacity if zero.
	SeenIDCapacity int
	// AckTimeout is how long a RequiresAck message waits for Ack before
	// an AckTimeout event fires. Zero disables ack tracking.
	AckTimeout time.Duration

	Clock clock.Clock
}

func (c Config) validate() error {
	if c.Name == "" {
		return errInvalid("Name must not be empty")
	}
	if c.BufferCapacity < 1 {
		return errInvalid("BufferCapacity must be >= 1")
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return "order: " + string(e) }
func errInvalid(msg string) error       { return validationError(msg) }

type pendingAck struct {
	timer clock.Timer
	msg   Message
}

// Stream reassembles one inbound sequence of messages into strictly
// ascending, gap-free delivery (spec.md §8 invariant 7).
type Stream struct {
	cfg   Config
	clock clock.Clock

	mu            sync.Mutex
	nextExpected  uint64
	maxSeen       uint64
	reorderBuffer map[uint64]Message
	missing       map[uint64]struct{}
	seen          *lru.Cache[string, struct{}]
	pendingAcks   map[string]*pendingAck

	events  chan Event
	closing chan struct{}
	closeOnce sync.Once
}

// New builds a Stream ready to receive messages starting at cfg.BaseSeq
// (default 1).
func New(cfg Config) (*Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	base := cfg.BaseSeq
	if base == 0 {
		base = 1
	}
	seenCap := cfg.SeenIDCapacity
	if seenCap == 0 {
		seenCap = cfg.BufferCapacity * 4
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}

	seen, err := lru.New[string, struct{}](seenCap)
	if err != nil {
		return nil, err
	}

	return &Stream{
		cfg:           cfg,
		clock:         c,
		nextExpected:  base,
		maxSeen:       base - 1,
		reorderBuffer: make(map[uint64]Message),
		missing:       make(map[uint64]struct{}),
		seen:          seen,
		pendingAcks:   make(map[string]*pendingAck),
		events:        make(chan Event, 64),
		closing:       make(chan struct{}),
	}, nil
}

// Close stops every pending ack-timeout watcher goroutine. Idempotent.
// Streams are normally owned and closed by a registry.Registry.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Events returns the channel every signal is delivered on. Bounded and
// non-blocking to send: a consumer that falls behind drops events rather
// than stalling Receive (spec.md §9 "callback fan-out -> event stream").
func (s *Stream) Events() <-chan Event { return s.events }

func (s *Stream) emit(ev Event) {
	ev.At = s.clock.Now()
	select {
	case s.events <- ev:
	default:
	}
}

// Receive processes one inbound message, delivering it (and any now-
// contiguous buffered successors) in order, buffering it if it arrived
// ahead of nextExpected, or treating it as a duplicate/late arrival.
func (s *Stream) Receive(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen.Get(msg.ID); dup {
		s.emit(Event{Kind: EventDuplicate, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber})
		return
	}

	switch {
	case msg.SequenceNumber == s.nextExpected:
		s.deliverLocked(msg)
		s.drainBufferLocked()

	case msg.SequenceNumber > s.nextExpected:
		s.bufferLocked(msg)

	default:
		// seq < nextExpected: already past this point in the stream.
		s.emit(Event{Kind: EventLate, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber})
	}
}

// HandleRetransmission processes a message delivered in response to a
// RequestRetransmission signal. It is handled identically to Receive: the
// transport is responsible for eventually delivering a message for every
// requested seq, but this stream doesn't care whether a message arrived
// via the original channel or a retransmission.
func (s *Stream) HandleRetransmission(msg Message) {
	s.Receive(msg)
}

func (s *Stream) deliverLocked(msg Message) {
	s.seen.Add(msg.ID, struct{}{})
	s.nextExpected++
	if s.nextExpected-1 > s.maxSeen {
		s.maxSeen = s.nextExpected - 1
	}
	delete(s.missing, msg.SequenceNumber)

	s.emit(Event{Kind: EventDeliver, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber, Message: msg})

	if msg.RequiresAck {
		s.scheduleAckLocked(msg)
	}
}

// drainBufferLocked delivers every buffered message that has become
// contiguous with nextExpected, then emits Recovered once the gap that
// made them non-contiguous is fully closed.
func (s *Stream) drainBufferLocked() {
	drained := false
	for {
		buffered, ok := s.reorderBuffer[s.nextExpected]
		if !ok {
			break
		}
		delete(s.reorderBuffer, s.nextExpected)
		s.deliverLocked(buffered)
		drained = true
	}
	if drained && len(s.missing) == 0 {
		s.emit(Event{Kind: EventRecovered, SequenceNumber: s.nextExpected - 1})
	}
}

func (s *Stream) bufferLocked(msg Message) {
	if _, already := s.reorderBuffer[msg.SequenceNumber]; already {
		s.emit(Event{Kind: EventDuplicate, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber})
		return
	}

	s.reorderBuffer[msg.SequenceNumber] = msg
	s.emit(Event{Kind: EventBuffered, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber, Message: msg})

	if msg.SequenceNumber > s.maxSeen {
		for gap := s.maxSeen + 1; gap < msg.SequenceNumber; gap++ {
			if gap < s.nextExpected {
				continue
			}
			if _, already := s.missing[gap]; !already {
				s.missing[gap] = struct{}{}
				s.emit(Event{Kind: EventMissing, SequenceNumber: gap})
				s.emit(Event{Kind: EventRequestRetransmission, SequenceNumber: gap})
			}
		}
		s.maxSeen = msg.SequenceNumber
	}

	if len(s.reorderBuffer) > s.cfg.BufferCapacity {
		s.evictHighestLocked()
	}
}

// evictHighestLocked drops the highest-sequence buffered entry (spec.md §9
// open question: drop-newest policy).
func (s *Stream) evictHighestLocked() {
	var highestSeq uint64
	var found bool
	for seq := range s.reorderBuffer {
		if !found || seq > highestSeq {
			highestSeq = seq
			found = true
		}
	}
	if !found {
		return
	}
	evicted := s.reorderBuffer[highestSeq]
	delete(s.reorderBuffer, highestSeq)
	s.emit(Event{Kind: EventBufferOverflow, MessageID: evicted.ID, SequenceNumber: highestSeq, Message: evicted})
}

func (s *Stream) scheduleAckLocked(msg Message) {
	s.emit(Event{Kind: EventAckSent, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber})

	if s.cfg.AckTimeout <= 0 {
		return
	}

	timer := s.clock.After(s.cfg.AckTimeout)
	s.pendingAcks[msg.ID] = &pendingAck{timer: timer, msg: msg}

	go func() {
		select {
		case <-timer.C():
			s.onAckTimeout(msg)
		case <-s.closing:
		}
	}()
}

func (s *Stream) onAckTimeout(msg Message) {
	s.mu.Lock()
	_, stillPending := s.pendingAcks[msg.ID]
	if stillPending {
		delete(s.pendingAcks, msg.ID)
	}
	s.mu.Unlock()

	if stillPending {
		s.emit(Event{Kind: EventAckTimeout, MessageID: msg.ID, SequenceNumber: msg.SequenceNumber})
	}
}

// Ack records that messageId was acknowledged, cancelling its pending
// ack-timeout deadline. Acking an id with no pending deadline (already
// timed out, or never required one) is a no-op.
func (s *Stream) Ack(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.pendingAcks[messageID]
	if !ok {
		return
	}
	pa.timer.Stop()
	delete(s.pendingAcks, messageID)
}

// Snapshot describes the stream's current state, for status surfaces and
// tests.
type Snapshot struct {
	NextExpectedSeq uint64
	BufferedSeqs    []uint64
	MissingSeqs     []uint64
	PendingAckIDs   []string
}

func (s *Stream) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{NextExpectedSeq: s.nextExpected}
	for seq := range s.reorderBuffer {
		snap.BufferedSeqs = append(snap.BufferedSeqs, seq)
	}
	for seq := range s.missing {
		snap.MissingSeqs = append(snap.MissingSeqs, seq)
	}
	for id := range s.pendingAcks {
		snap.PendingAckIDs = append(snap.PendingAckIDs, id)
	}
	return snap
}

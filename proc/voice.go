package proc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leeineian/chorus/sys"
)

// ErrStopped is returned by Enqueue when /stop arrived while the query was resolving.
var ErrStopped = errors.New("playback was stopped")

var VoiceManager *VoiceSystem

// InitVoiceManager builds the process-wide VoiceSystem.
func InitVoiceManager(caller Caller, resolver Resolver, resolveTimeout time.Duration) *VoiceSystem {
	VoiceManager = NewVoiceSystem(caller, resolver, resolveTimeout)
	return VoiceManager
}

// GetVoiceManager returns the VoiceSystem built by InitVoiceManager.
func GetVoiceManager() *VoiceSystem {
	return VoiceManager
}

// ===========================
// Session
// ===========================

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhasePlaying:
		return "playing"
	default:
		return "idle"
	}
}

// Session is one chat's playback state. It exists from the first queued track
// until the queue empties or the chat is stopped; after that it is closed and
// replaced by a fresh Session on the next /play.
type Session struct {
	ChatID    int64
	ID        uuid.UUID
	CreatedAt time.Time

	mu      sync.Mutex
	queue   Queue
	phase   Phase
	stream  uuid.UUID // id of the caller stream playing the head
	closed  bool
	stopped bool
}

func newSession(chatID int64) *Session {
	return &Session{ChatID: chatID, ID: uuid.New(), CreatedAt: time.Now()}
}

func (s *Session) tag() string {
	return s.ID.String()[:8]
}

// ===========================
// Voice Manager
// ===========================

// Enqueued describes the outcome of a successful /play.
type Enqueued struct {
	Track    Track
	Position int  // 1-based position in the queue
	Started  bool // true when this track started playback immediately
}

// VoiceSystem owns every chat's queue and drives the voice caller.
// Operations on one chat are serialized by that chat's Session lock.
type VoiceSystem struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	inflight map[int64]map[uuid.UUID]context.CancelCauseFunc

	caller         Caller
	resolver       Resolver
	resolveTimeout time.Duration
}

func NewVoiceSystem(caller Caller, resolver Resolver, resolveTimeout time.Duration) *VoiceSystem {
	vs := &VoiceSystem{
		sessions:       make(map[int64]*Session),
		inflight:       make(map[int64]map[uuid.UUID]context.CancelCauseFunc),
		caller:         caller,
		resolver:       resolver,
		resolveTimeout: resolveTimeout,
	}
	caller.OnStreamEnd(vs.HandleStreamEnd)
	return vs
}

func (vs *VoiceSystem) lookup(chatID int64) *Session {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.sessions[chatID]
}

// acquireLocked returns the chat's live session, creating it if needed. vs.mu must be held.
func (vs *VoiceSystem) acquireLocked(chatID int64) *Session {
	s, ok := vs.sessions[chatID]
	if !ok {
		s = newSession(chatID)
		vs.sessions[chatID] = s
	}
	return s
}

func (vs *VoiceSystem) forget(s *Session) {
	vs.mu.Lock()
	if vs.sessions[s.ChatID] == s {
		delete(vs.sessions, s.ChatID)
	}
	vs.mu.Unlock()
}

// beginResolve registers a cancellable resolution so Stop can abort it.
func (vs *VoiceSystem) beginResolve(ctx context.Context, chatID int64) (context.Context, uuid.UUID, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(ctx)
	timeoutCtx, cancelTimeout := ctx, context.CancelFunc(func() {})
	if vs.resolveTimeout > 0 {
		timeoutCtx, cancelTimeout = context.WithTimeout(ctx, vs.resolveTimeout)
	}

	id := uuid.New()
	vs.mu.Lock()
	if vs.inflight[chatID] == nil {
		vs.inflight[chatID] = make(map[uuid.UUID]context.CancelCauseFunc)
	}
	vs.inflight[chatID][id] = cancelCause
	vs.mu.Unlock()

	return timeoutCtx, id, func() {
		cancelTimeout()
		cancelCause(context.Canceled)
	}
}

// endResolveLocked unregisters a resolution. vs.mu must be held.
func (vs *VoiceSystem) endResolveLocked(chatID int64, id uuid.UUID) {
	if m, ok := vs.inflight[chatID]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(vs.inflight, chatID)
		}
	}
}

// Enqueue resolves query and appends it to the chat's queue. Playback starts
// only when the queue was empty before the append.
func (vs *VoiceSystem) Enqueue(ctx context.Context, chatID int64, query string) (Enqueued, error) {
	rctx, id, release := vs.beginResolve(ctx, chatID)
	track, err := vs.resolver.Resolve(rctx, query)
	stopped := errors.Is(context.Cause(rctx), ErrStopped)
	release()

	vs.mu.Lock()
	vs.endResolveLocked(chatID, id)
	if stopped || err != nil {
		vs.mu.Unlock()
		if stopped {
			sys.LogVoice(sys.MsgVoiceDroppedLate, query, chatID)
			return Enqueued{}, ErrStopped
		}
		return Enqueued{}, err
	}
	s := vs.acquireLocked(chatID)
	vs.mu.Unlock()

	for {
		s.mu.Lock()
		if s.closed {
			wasStopped := s.stopped
			s.mu.Unlock()
			if wasStopped {
				return Enqueued{}, ErrStopped
			}
			vs.mu.Lock()
			s = vs.acquireLocked(chatID)
			vs.mu.Unlock()
			continue
		}

		pos := s.queue.Push(track)
		sys.LogVoice(sys.MsgVoiceQueued, s.tag(), chatID, track.Title, pos)

		res := Enqueued{Track: track, Position: pos}
		if pos == 1 {
			err = vs.advance(ctx, s)
			head, ok := s.queue.Head()
			res.Started = err == nil && ok && head == track
		}
		s.mu.Unlock()
		return res, err
	}
}

// Skip drops the current track and advances. It reports false when nothing was queued.
func (vs *VoiceSystem) Skip(ctx context.Context, chatID int64) (bool, error) {
	s := vs.lookup(chatID)
	if s == nil {
		sys.LogDebug(sys.MsgVoiceSkipNoSession, chatID)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.queue.Len() == 0 {
		return false, nil
	}
	s.queue.Pop()
	return true, vs.advance(ctx, s)
}

// HandleStreamEnd is the caller's stream-end notification. Ends for any stream
// other than the one started for the current head are stale and ignored.
func (vs *VoiceSystem) HandleStreamEnd(chatID int64, stream uuid.UUID) {
	s := vs.lookup(chatID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != PhasePlaying || s.stream != stream || s.queue.Len() == 0 {
		return
	}

	sys.LogVoice(sys.MsgVoiceStreamEnded, chatID)
	s.queue.Pop()
	if err := vs.advance(context.Background(), s); err != nil {
		sys.LogError(sys.MsgGenericError, err)
	}
}

// Stop cancels pending resolutions, clears the queue and leaves the call
// whether or not anything was playing.
func (vs *VoiceSystem) Stop(ctx context.Context, chatID int64) error {
	vs.mu.Lock()
	cancelled := len(vs.inflight[chatID])
	for _, cancel := range vs.inflight[chatID] {
		cancel(ErrStopped)
	}
	delete(vs.inflight, chatID)
	s := vs.acquireLocked(chatID)
	vs.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
	s.phase = PhaseIdle
	s.closed = true
	s.stopped = true
	err := vs.caller.Leave(ctx, chatID)
	vs.forget(s)

	sys.LogVoice(sys.MsgVoiceStopped, chatID, cancelled)
	return err
}

// Pause is forwarded to the caller as-is.
func (vs *VoiceSystem) Pause(ctx context.Context, chatID int64) error {
	return vs.caller.Pause(ctx, chatID)
}

// Resume is forwarded to the caller as-is.
func (vs *VoiceSystem) Resume(ctx context.Context, chatID int64) error {
	return vs.caller.Resume(ctx, chatID)
}

// Snapshot returns the chat's queue in playback order; nil when absent.
func (vs *VoiceSystem) Snapshot(chatID int64) []Track {
	s := vs.lookup(chatID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.queue.Tracks()
}

// Phase reports whether the chat is currently streaming.
func (vs *VoiceSystem) Phase(chatID int64) Phase {
	s := vs.lookup(chatID)
	if s == nil {
		return PhaseIdle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PhaseIdle
	}
	return s.phase
}

// ActiveChats is the number of chats with a live session.
func (vs *VoiceSystem) ActiveChats() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.sessions)
}

// Shutdown stops every chat. Used on process exit.
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	vs.mu.Lock()
	chats := make([]int64, 0, len(vs.sessions))
	for id := range vs.sessions {
		chats = append(chats, id)
	}
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range chats {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			if err := vs.Stop(ctx, chatID); err != nil {
				sys.LogWarn(sys.MsgVoiceLeaveFailed, chatID, err)
			}
		}(id)
	}
	wg.Wait()
}

// advance makes the caller match the queue head. s.mu must be held.
// A head the caller cannot stream is dropped so one dead reference does not
// wedge the chat; the first such error is returned.
func (vs *VoiceSystem) advance(ctx context.Context, s *Session) error {
	var firstErr error
	for {
		head, ok := s.queue.Head()
		if !ok {
			sys.LogVoice(sys.MsgVoiceEmpty, s.tag(), s.ChatID)
			s.phase = PhaseIdle
			s.stream = uuid.Nil
			s.closed = true
			vs.forget(s)
			if err := vs.caller.Leave(ctx, s.ChatID); err != nil {
				sys.LogWarn(sys.MsgVoiceLeaveFailed, s.ChatID, err)
				if firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}

		stream := uuid.New()
		if err := vs.caller.Join(ctx, s.ChatID, head.Source, stream); err != nil {
			sys.LogError(sys.MsgVoiceJoinFailed, s.tag(), head.Title, s.ChatID, err)
			if firstErr == nil {
				firstErr = err
			}
			s.queue.Pop()
			continue
		}

		s.phase = PhasePlaying
		s.stream = stream
		sys.LogVoice(sys.MsgVoiceAdvance, s.tag(), s.ChatID, head.Title)
		return firstErr
	}
}

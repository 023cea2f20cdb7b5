package console

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tbourn/mobileauth-chat/internal/domain"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

var t0 = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// fakeChat is an in-memory channel set with the same ordering and filtering
// rules as the stores.
type fakeChat struct {
	mu       sync.Mutex
	users    map[string]*domain.User // session ID -> user
	channels map[string][]domain.ChatMessage
	seq      int

	sinceErrs int // fail the next N Since calls
	sinceAt   []time.Time
	block     chan struct{} // when set, Since waits for it
	pollCtxs  []context.Context
}

func newFakeChat() *fakeChat {
	return &fakeChat{users: map[string]*domain.User{}, channels: map[string][]domain.ChatMessage{}}
}

func (f *fakeChat) add(channelID string, sender domain.Sender, text string, at time.Time) domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := domain.ChatMessage{
		ID:        fmt.Sprintf("m%03d", f.seq),
		ChannelID: channelID,
		Sender:    sender,
		Text:      text,
		Timestamp: at,
	}
	f.channels[channelID] = append(f.channels[channelID], m)
	return m
}

func (f *fakeChat) Channel(_ context.Context, sessionID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[sessionID]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeChat) ChannelHistory(_ context.Context, channelID string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatMessage(nil), f.channels[channelID]...), nil
}

func (f *fakeChat) SendAdminMessage(_ context.Context, channelID, text string) (*domain.ChatMessage, error) {
	m := f.add(channelID, domain.SenderAdmin, text, time.Now())
	return &m, nil
}

func (f *fakeChat) Latest(_ context.Context, channelID string) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.channels[channelID]
	if len(msgs) == 0 {
		return nil, nil
	}
	m := msgs[len(msgs)-1]
	return &m, nil
}

func (f *fakeChat) Since(ctx context.Context, channelID string, since time.Time) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	block := f.block
	f.pollCtxs = append(f.pollCtxs, ctx)
	f.sinceAt = append(f.sinceAt, time.Now())
	if f.sinceErrs > 0 {
		f.sinceErrs--
		f.mu.Unlock()
		return nil, errTransient
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChatMessage{}
	for _, m := range f.channels[channelID] {
		if m.Sender == domain.SenderAdmin || m.Timestamp.Before(since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinceAt)
}

type transientErr struct{}

func (transientErr) Error() string { return "store unreachable" }

var errTransient error = transientErr{}

// syncBuffer lets tests read what the console printed while it runs.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

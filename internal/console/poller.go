package console

import (
	"context"
	"time"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

// Defaults for Poller timing.
const (
	DefaultPollInterval = time.Second
	DefaultErrorBackoff = 5 * time.Second
)

// Feed is the read side of a channel the poller tails.
type Feed interface {
	// Latest returns the newest message, or nil for an empty channel.
	Latest(ctx context.Context, channelID string) (*domain.ChatMessage, error)
	// Since returns the non-operator messages at or after since, oldest
	// first. A zero since returns all of them.
	Since(ctx context.Context, channelID string, since time.Time) ([]domain.ChatMessage, error)
}

// Poller tails one channel and hands every new non-operator message to
// Emit, in order. Each message is emitted once per Poller.
//
// The cursor starts at the newest message present when Run begins, so the
// existing transcript is not replayed. A poll that fails is retried after
// Backoff; every other poll waits Interval.
type Poller struct {
	Feed      Feed
	ChannelID string
	Interval  time.Duration
	Backoff   time.Duration

	Emit    func(domain.ChatMessage)
	OnError func(error)

	cur     cursor
	started bool
	priming bool
}

// cursor is the timestamp of the last emitted message plus the IDs already
// emitted at exactly that instant.
type cursor struct {
	at   time.Time
	seen map[string]struct{}
}

func (c *cursor) advance(m domain.ChatMessage) {
	if m.Timestamp.After(c.at) || c.seen == nil {
		c.at = m.Timestamp
		c.seen = make(map[string]struct{})
	}
	c.seen[m.ID] = struct{}{}
}

func (c *cursor) has(m domain.ChatMessage) bool {
	if m.Timestamp.Before(c.at) {
		return true
	}
	_, ok := c.seen[m.ID]
	return ok && m.Timestamp.Equal(c.at)
}

// Run polls until ctx is cancelled and returns nil. Cancellation is checked
// between polls only: a poll in flight finishes with a context that ignores
// the cancellation.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := p.interval()
		if err := p.Poll(context.WithoutCancel(ctx)); err != nil {
			if p.OnError != nil {
				p.OnError(err)
			}
			wait = p.backoff()
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Poll runs one iteration. The first call positions the cursor at the
// newest message; the first successful fetch after that treats everything
// stored at that same instant as already seen. Every fetch emits what
// arrived after the cursor.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.started {
		latest, err := p.Feed.Latest(ctx, p.ChannelID)
		if err != nil {
			return err
		}
		if latest != nil {
			p.cur.advance(*latest)
			p.priming = true
		}
		p.started = true
	}

	msgs, err := p.Feed.Since(ctx, p.ChannelID, p.cur.at)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if p.cur.has(m) {
			continue
		}
		if !(p.priming && m.Timestamp.Equal(p.cur.at)) && p.Emit != nil {
			p.Emit(m)
		}
		p.cur.advance(m)
	}
	p.priming = false
	return nil
}

func (p *Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultPollInterval
}

func (p *Poller) backoff() time.Duration {
	if p.Backoff > 0 {
		return p.Backoff
	}
	return DefaultErrorBackoff
}

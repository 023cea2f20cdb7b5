// Package console implements the operator terminal for a support channel:
// it prints the transcript, tails new customer and bot messages, and sends
// whatever the operator types as admin messages.
package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/tbourn/mobileauth-chat/internal/domain"
	"github.com/tbourn/mobileauth-chat/internal/services"
	"github.com/tbourn/mobileauth-chat/internal/sysutil"
)

// Chat is the channel surface the console drives.
type Chat interface {
	Feed
	Channel(ctx context.Context, sessionID string) (*domain.User, error)
	ChannelHistory(ctx context.Context, channelID string) ([]domain.ChatMessage, error)
	SendAdminMessage(ctx context.Context, channelID, text string) (*domain.ChatMessage, error)
}

// Console attaches an operator to the channel of one user.
type Console struct {
	Chat Chat
	Out  *Printer
	In   io.Reader

	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// Run attaches to the channel behind sessionID, prompting for it on In when
// empty. It returns when the operator types exit, In ends, or ctx is
// cancelled; the tail is stopped before Run returns. An unresolvable
// session yields services.ErrUserNotFound.
func (c *Console) Run(ctx context.Context, sessionID string) error {
	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(c.In, stop)
	defer c.Out.Systemf("Session ended.")

	if strings.TrimSpace(sessionID) == "" {
		c.Out.Prompt("Enter user's session ID: ")
		line, ok := next(ctx, lines)
		c.Out.Done()
		if !ok {
			c.Out.Systemf("\nDisconnecting...")
			return nil
		}
		sessionID = strings.TrimSpace(line)
	}

	u, err := c.Chat.Channel(ctx, sessionID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.Out.Systemf("Error: No user found for session ID '%s'.", sessionID)
		} else {
			c.Out.Systemf("Error: %v", err)
		}
		return err
	}

	c.Out.Systemf("\nConnecting to chat with %s (ID: %s)...", sysutil.FirstNonEmpty(u.DisplayName(), "N/A"), u.ID)
	history, err := c.Chat.ChannelHistory(ctx, u.ID)
	if err != nil {
		c.Out.Systemf("Error loading history: %v", err)
		return err
	}
	c.Out.History(history)
	c.Out.Systemf("Successfully connected. Type 'exit' to quit.")

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p := &Poller{
		Feed:      c.Chat,
		ChannelID: u.ID,
		Interval:  c.PollInterval,
		Backoff:   c.ErrorBackoff,
		Emit:      c.Out.Live,
		OnError:   func(err error) { c.Out.Alertf("Error polling messages: %v", err) },
	}
	go func() {
		defer close(done)
		_ = p.Run(pollCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		c.Out.Prompt("")
		line, ok := next(ctx, lines)
		c.Out.Done()
		if !ok {
			c.Out.Systemf("\nDisconnecting...")
			return nil
		}
		text := strings.TrimSpace(line)
		if strings.EqualFold(text, "exit") {
			return nil
		}
		if text == "" {
			continue
		}
		if _, err := c.Chat.SendAdminMessage(ctx, u.ID, line); err != nil {
			c.Out.Systemf("Failed to send message: %v", err)
		}
	}
}

// readLines feeds In line by line until EOF or stop.
func readLines(r io.Reader, stop <-chan struct{}) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-stop:
				return
			}
		}
	}()
	return out
}

func next(ctx context.Context, lines <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case l, ok := <-lines:
		return l, ok
	}
}

package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/mobileauth-chat/internal/domain"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	prompt     = "Admin> "
)

// clearLine wipes a partially typed operator line.
var clearLine = "\r" + strings.Repeat(" ", 80) + "\r"

// Printer serialises every terminal write of the console. Messages arriving
// from the poller while the operator prompt is showing are printed on a
// fresh line and the prompt is redrawn after them.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	loc      *time.Location
	imageURL string
	upper    cases.Caser

	senders map[string]lipgloss.Style
	system  lipgloss.Style
	image   lipgloss.Style
	admin   lipgloss.Style

	prompting bool
}

// NewPrinter writes to w. Messages whose text starts with imagePrefix are
// shown as image attachments. Colours are enabled only when w is a
// terminal.
func NewPrinter(w io.Writer, imagePrefix string, loc *time.Location) *Printer {
	if loc == nil {
		loc = time.Local
	}
	r := lipgloss.NewRenderer(w)
	style := func(c string) lipgloss.Style { return r.NewStyle().Foreground(lipgloss.Color(c)) }
	admin := style("11")
	return &Printer{
		w:        w,
		loc:      loc,
		imageURL: imagePrefix,
		upper:    cases.Upper(language.Und),
		senders: map[string]lipgloss.Style{
			"USER":  style("12"),
			"BOT":   style("10"),
			"ADMIN": admin,
		},
		system: style("13"),
		image:  style("14"),
		admin:  admin,
	}
}

// Format renders one transcript line.
func (p *Printer) Format(m domain.ChatMessage) string {
	sender := p.upper.String(string(m.Sender))
	if sender == "" {
		sender = "SYSTEM"
	}
	st, ok := p.senders[sender]
	if !ok {
		st = p.system
	}
	head := st.Render(fmt.Sprintf("[%s] %s:", m.Timestamp.In(p.loc).Format(timeLayout), sender))
	if m.IsImage(p.imageURL) {
		return head + " " + p.image.Render("[IMAGE SENT]: "+m.Text)
	}
	return head + " " + m.Text
}

// History prints the transcript followed by an end marker, or a notice when
// there is nothing to show.
func (p *Printer) History(msgs []domain.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(msgs) == 0 {
		p.line(p.system.Render("No chat history found for this user."))
		return
	}
	for _, m := range msgs {
		p.line(p.Format(m))
	}
	p.line(p.system.Render("--- End of History ---"))
	fmt.Fprintln(p.w)
}

// Live prints a message that arrived while the operator may be typing.
func (p *Printer) Live(m domain.ChatMessage) { p.interrupt(p.Format(m)) }

// Alertf prints a notice from the background poller.
func (p *Printer) Alertf(format string, args ...any) {
	p.interrupt(p.system.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) interrupt(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prompting {
		fmt.Fprint(p.w, clearLine)
	}
	p.line(s)
	if p.prompting {
		fmt.Fprint(p.w, p.admin.Render(prompt))
	}
}

// Systemf prints a console notice.
func (p *Printer) Systemf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prompting {
		fmt.Fprintln(p.w)
		p.prompting = false
	}
	text := fmt.Sprintf(format, args...)
	body := strings.TrimLeft(text, "\n")
	fmt.Fprint(p.w, text[:len(text)-len(body)])
	p.line(p.system.Render(body))
}

// Prompt shows the operator prompt. It stays logically on screen until the
// next Systemf or Done.
func (p *Printer) Prompt(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == "" {
		text = prompt
	}
	fmt.Fprint(p.w, p.admin.Render(text))
	p.prompting = text == prompt
}

// Done records that the operator submitted a line.
func (p *Printer) Done() {
	p.mu.Lock()
	p.prompting = false
	p.mu.Unlock()
}

func (p *Printer) line(s string) { fmt.Fprintln(p.w, s) }

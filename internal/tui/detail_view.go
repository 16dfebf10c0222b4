package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/unirun/internal/affordance"
	"github.com/kingrea/unirun/internal/detail"
	"github.com/kingrea/unirun/internal/order"
)

const chatHistoryLines = 8

var (
	detailTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	keyStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	timelineOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	timelineOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	ownBubbleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1A202C")).Background(lipgloss.Color("#90CDF4")).Padding(0, 1)
	peerBubbleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E2E8F0")).Background(lipgloss.Color("#2D3748")).Padding(0, 1)
	systemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
	overlayStyle     = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#F7B801")).Padding(0, 2)

	noticeStyles = map[detail.NoticeKind]lipgloss.Style{
		detail.NoticeInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		detail.NoticeSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		detail.NoticeError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

type detailFocus int

const (
	focusActions detailFocus = iota
	focusChat
	focusComment
)

// detailView renders a detail.Session and turns key presses into session
// calls. It keeps no order state of its own.
type detailView struct {
	app     *App
	session *detail.Session
	chat    textinput.Model
	comment textinput.Model
	stars   int
	focus   detailFocus
	width   int
}

func newDetailView(app *App, session *detail.Session) *detailView {
	chat := textinput.New()
	chat.Placeholder = "Message"
	chat.CharLimit = 500
	comment := textinput.New()
	comment.Placeholder = "Comment (optional)"
	comment.CharLimit = 200
	return &detailView{app: app, session: session, chat: chat, comment: comment}
}

func (v *detailView) resize(width int) {
	v.width = width
	inner := max(20, width/2)
	v.chat.Width = inner
	v.comment.Width = inner
}

// Update forwards non-key messages to the session.
func (v *detailView) Update(msg tea.Msg) tea.Cmd {
	cmds := []tea.Cmd{v.session.Update(msg)}
	if !v.session.Dispatcher().Rating().Open && v.focus == focusComment {
		v.setFocus(focusActions)
	}
	if v.focus == focusChat && !v.chatAllowed() {
		v.setFocus(focusActions)
	}
	// Cursor blink.
	var inputCmd tea.Cmd
	switch v.focus {
	case focusChat:
		v.chat, inputCmd = v.chat.Update(msg)
	case focusComment:
		v.comment, inputCmd = v.comment.Update(msg)
	}
	return tea.Batch(append(cmds, inputCmd)...)
}

// handleKey reports whether the key was consumed. Unhandled esc returns to
// the list.
func (v *detailView) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	d := v.session.Dispatcher()
	key := msg.String()

	if _, ok := d.Prompt(); ok {
		switch key {
		case "y", "enter":
			return d.Confirm(), true
		case "n", "esc":
			d.Dismiss()
		}
		return nil, true
	}

	if d.Rating().Open {
		return v.handleRatingKey(msg), true
	}

	if v.focus == focusChat {
		switch key {
		case "esc":
			v.setFocus(focusActions)
			return nil, true
		case "enter":
			cmd, err := v.session.Thread().Send(v.chat.Value())
			if errors.Is(err, detail.ErrEmptyMessage) {
				return nil, true
			}
			v.chat.Reset()
			return cmd, true
		}
		var cmd tea.Cmd
		v.chat, cmd = v.chat.Update(msg)
		return cmd, true
	}

	switch key {
	case "esc":
		return nil, false
	case "ctrl+r", "f5":
		return v.session.Poller().Refresh(), true
	}
	aff, ok := v.session.Affordances()
	if !ok || !aff.FooterVisible {
		return nil, false
	}
	desc, ok := aff.FindKey(key)
	if !ok {
		return nil, false
	}
	if !desc.Remote() {
		v.setFocus(focusChat)
		return textinput.Blink, true
	}
	if err := d.Request(desc.Action); err != nil {
		v.app.statusMsg = describeRequestError(err)
	}
	return nil, true
}

func (v *detailView) handleRatingKey(msg tea.KeyMsg) tea.Cmd {
	d := v.session.Dispatcher()
	key := msg.String()
	if v.focus == focusComment {
		switch key {
		case "esc", "tab":
			v.setFocus(focusActions)
			return nil
		case "enter":
			return v.submitRating()
		}
		var cmd tea.Cmd
		v.comment, cmd = v.comment.Update(msg)
		return cmd
	}
	switch key {
	case "1", "2", "3", "4", "5":
		v.stars = int(key[0] - '0')
	case "left", "h":
		v.stars = max(detail.MinRating, v.stars-1)
	case "right", "l":
		v.stars = min(detail.MaxRating, v.stars+1)
	case "tab":
		v.setFocus(focusComment)
		return textinput.Blink
	case "enter":
		return v.submitRating()
	case "s", "esc":
		d.SkipRating()
		v.stars = 0
		v.comment.Reset()
	}
	return nil
}

func (v *detailView) submitRating() tea.Cmd {
	cmd, err := v.session.Dispatcher().SubmitRating(v.stars, v.comment.Value())
	if err != nil {
		v.app.statusMsg = "Pick 1 to 5 stars first"
		return nil
	}
	return cmd
}

// chatAllowed reports whether the current affordances still offer Contact.
func (v *detailView) chatAllowed() bool {
	aff, ok := v.session.Affordances()
	return ok && aff.FooterVisible && aff.Has(affordance.Contact)
}

func (v *detailView) setFocus(f detailFocus) {
	v.focus = f
	v.chat.Blur()
	v.comment.Blur()
	switch f {
	case focusChat:
		v.chat.Focus()
	case focusComment:
		v.comment.Focus()
	}
}

func describeRequestError(err error) string {
	switch {
	case errors.Is(err, detail.ErrActionInFlight):
		return "Already submitting, please wait"
	case errors.Is(err, detail.ErrActionUnavailable):
		return "That action is not available right now"
	default:
		return err.Error()
	}
}

func (v *detailView) View() string {
	o, loaded := v.session.Snapshot()
	aff, _ := v.session.Affordances()
	if !loaded {
		lines := []string{fmt.Sprintf("Loading order #%s...", v.session.OrderID().Short())}
		if notice := v.renderNotice(); notice != "" {
			lines = append(lines, notice)
		}
		return strings.Join(lines, "\n")
	}
	sections := []string{
		v.renderHeader(o, aff),
		v.renderTimeline(aff.Timeline),
	}
	if aff.Hint != "" {
		sections = append(sections, hintStyle.Render("ℹ "+aff.Hint))
	}
	sections = append(sections, "", v.renderThread())
	if v.focus == focusChat {
		sections = append(sections, v.chat.View())
	}
	if notice := v.renderNotice(); notice != "" {
		sections = append(sections, notice)
	}
	if overlay := v.renderOverlay(); overlay != "" {
		sections = append(sections, overlay)
	}
	sections = append(sections, v.renderFooter(aff))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (v *detailView) renderHeader(o order.Order, aff affordance.Affordances) string {
	badge := lipgloss.NewStyle().
		Foreground(lipgloss.Color(aff.Status.Foreground)).
		Background(lipgloss.Color(aff.Status.Background)).
		Padding(0, 1).
		Render(aff.Status.Label)
	title := lipgloss.JoinHorizontal(lipgloss.Top, titleStyle.Render(o.Description), "  ", badge)
	lines := []string{
		title,
		detailTextStyle.Render(fmt.Sprintf("#%s · %s · %d pts · created %s",
			o.ID.Short(), o.Category, o.RewardPoints, displayOrDash(o.CreatedAt))),
	}
	if o.LocationPickup != "" || o.LocationDeliver != "" {
		lines = append(lines, detailTextStyle.Render(fmt.Sprintf("From %s → %s", dashIfEmpty(o.LocationPickup), dashIfEmpty(o.LocationDeliver))))
	}
	if o.PickupCode != "" && aff.Role != affordance.Bystander {
		lines = append(lines, detailTextStyle.Render("Pickup code: "+o.PickupCode))
	}
	if len(o.Tags) > 0 {
		lines = append(lines, mutedStyle.Render("#"+strings.Join(o.Tags, " #")))
	}
	lines = append(lines, mutedStyle.Render("You are the "+aff.Role.String()))
	return strings.Join(lines, "\n")
}

func (v *detailView) renderTimeline(tl affordance.Timeline) string {
	step := func(active bool, label, at string) string {
		if !active {
			return timelineOffStyle.Render("○ " + label)
		}
		if at != "" {
			label = fmt.Sprintf("%s (%s)", label, at)
		}
		return timelineOnStyle.Render("● " + label)
	}
	return strings.Join([]string{
		timelineOnStyle.Render("● Published"),
		step(tl.TakenActive, "Taken", tl.TakenAt),
		step(tl.DoneActive, "Done", tl.DoneAt),
	}, mutedStyle.Render(" ── "))
}

func (v *detailView) renderThread() string {
	entries := v.session.Thread().Entries()
	if len(entries) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	if len(entries) > chatHistoryLines {
		entries = entries[len(entries)-chatHistoryLines:]
	}
	width := max(30, v.width/2+10)
	viewer := v.session.Viewer()
	rows := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.SenderID == order.SystemSender {
			rows = append(rows, lipgloss.PlaceHorizontal(width, lipgloss.Center, systemStyle.Render(e.Content)))
			continue
		}
		text := e.Content
		switch {
		case e.Failed:
			text += " ⚠ not sent"
		case e.Pending():
			text += " …"
		}
		if detail.Align(e.Message, viewer) == detail.Right {
			rows = append(rows, lipgloss.PlaceHorizontal(width, lipgloss.Right, ownBubbleStyle.Render(text)))
			continue
		}
		name := e.SenderName
		if name == "" {
			name = "User " + string(e.SenderID)
		}
		rows = append(rows, lipgloss.PlaceHorizontal(width, lipgloss.Left, mutedStyle.Render(name)+" "+peerBubbleStyle.Render(text)))
	}
	return strings.Join(rows, "\n")
}

func (v *detailView) renderNotice() string {
	n, ok := v.session.Notice()
	if !ok {
		return ""
	}
	style, found := noticeStyles[n.Kind]
	if !found {
		style = noticeStyles[detail.NoticeInfo]
	}
	return style.Render(n.Text)
}

func (v *detailView) renderOverlay() string {
	d := v.session.Dispatcher()
	if p, ok := d.Prompt(); ok {
		body := fmt.Sprintf("%s\n%s\n\n%s yes    %s no",
			titleStyle.Render(p.Title), p.Body, keyStyle.Render("[y]"), keyStyle.Render("[n]"))
		return overlayStyle.Render(body)
	}
	rating := d.Rating()
	if !rating.Open {
		return ""
	}
	stars := strings.Repeat("★", v.stars) + strings.Repeat("☆", detail.MaxRating-v.stars)
	status := fmt.Sprintf("%s 1-5 stars    %s comment    %s submit    %s skip",
		keyStyle.Render("[1-5]"), keyStyle.Render("[tab]"), keyStyle.Render("[enter]"), keyStyle.Render("[s]"))
	if rating.Submitting {
		status = mutedStyle.Render("Submitting...")
	}
	body := fmt.Sprintf("%s\n%s\n%s\n\n%s",
		titleStyle.Render("Order completed · rate this errand"),
		hintStyle.Render(stars),
		v.comment.View(),
		status)
	return overlayStyle.Render(body)
}

func (v *detailView) renderFooter(aff affordance.Affordances) string {
	var parts []string
	if aff.FooterVisible {
		d := v.session.Dispatcher()
		for _, desc := range aff.PrimaryActions {
			label := desc.Label
			if d.Pending(desc.Action) {
				label += "…"
			}
			if !desc.Primary {
				label = mutedStyle.Render(label)
			}
			parts = append(parts, fmt.Sprintf("%s %s", keyStyle.Render("["+desc.Key+"]"), label))
		}
	}
	parts = append(parts, fmt.Sprintf("%s back", keyStyle.Render("[esc]")))
	return lipgloss.NewStyle().MarginTop(1).Render(strings.Join(parts, "    "))
}

func displayOrDash(t order.Time) string {
	return dashIfEmpty(t.Display())
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// internal/tui/app.go
//
// This is the terminal UI for UniRun. It uses bubbletea, which follows The
// Elm Architecture:
//
// 1. Model: the App struct below
// 2. Update: applies one message and returns follow-up commands
// 3. View: renders the model to a string
//
// The list screen shows errands by category. Enter opens a detail screen
// backed by a detail.Session, which owns polling, commands and chat for that
// one order.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/affordance"
	"github.com/kingrea/unirun/internal/api"
	"github.com/kingrea/unirun/internal/config"
	"github.com/kingrea/unirun/internal/detail"
	"github.com/kingrea/unirun/internal/eventbus"
	"github.com/kingrea/unirun/internal/logbook"
	"github.com/kingrea/unirun/internal/order"
)

// appState represents which screen we're on
type appState int

const (
	stateOrderList   appState = iota // Order list with category filter
	stateOrderDetail                 // One order, driven by a detail.Session
)

const listLoadTimeout = 10 * time.Second

var categoryFilters = []string{"all", string(order.CategoryFood), string(order.CategoryPackage), string(order.CategoryPrint)}

// Backend is everything the TUI needs from the order API. *api.Client
// implements it.
type Backend interface {
	detail.Backend
	ListOrders(ctx context.Context, filter api.ListFilter) ([]order.Order, error)
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithBackend replaces the HTTP client built from the config.
func WithBackend(b Backend) AppOption {
	return func(a *App) {
		if b != nil {
			a.backend = b
		}
	}
}

// WithBus shares an event bus with the caller.
func WithBus(bus *eventbus.Bus) AppOption {
	return func(a *App) {
		if bus != nil {
			a.bus = bus
		}
	}
}

// WithLogger sets the zap logger handed to sessions.
func WithLogger(l *zap.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLogbook sets the journey log shown in the log panel.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithInitialOrder opens the detail screen for id on start.
func WithInitialOrder(id order.ID) AppOption {
	return func(a *App) {
		a.initialOrder = id
	}
}

// WithSessionOptions lets callers adjust every detail session before it is
// built, for example to inject a fake clock.
func WithSessionOptions(fn func(*detail.Options)) AppOption {
	return func(a *App) {
		a.sessionHook = fn
	}
}

type ordersLoadedMsg struct {
	seq    uint64
	orders []order.Order
	err    error
}

type ordersChangedMsg struct {
	event eventbus.Event
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state   appState
	config  *config.Config
	viewer  order.Viewer
	backend Backend
	bus     *eventbus.Bus
	sub     eventbus.Subscription
	logger  *zap.Logger
	logbook *logbook.Logbook

	ctx    context.Context
	cancel context.CancelFunc

	// List screen
	orderList   list.Model
	orders      []order.Order
	categoryIdx int
	loadSeq     uint64
	loading     bool
	listErr     string

	// Detail screen
	detail       *detailView
	initialOrder order.ID
	sessionHook  func(*detail.Options)

	statusMsg string
	width     int
	height    int
}

// orderItem implements list.Item for one order row
type orderItem struct {
	order  order.Order
	viewer order.Viewer
}

func (i orderItem) Title() string {
	return fmt.Sprintf("%s · %s", i.order.Description, affordance.BadgeFor(i.order.Status).Label)
}

func (i orderItem) Description() string {
	parts := []string{
		fmt.Sprintf("#%s", i.order.ID.Short()),
		string(i.order.Category),
		fmt.Sprintf("%d pts", i.order.RewardPoints),
	}
	if role := affordance.RoleOf(i.order, i.viewer); role != affordance.Bystander {
		parts = append(parts, "you: "+role.String())
	}
	if created := i.order.CreatedAt.Display(); created != "" {
		parts = append(parts, created)
	}
	return strings.Join(parts, " · ")
}

func (i orderItem) FilterValue() string { return i.order.Description }

// NewApp creates a new App instance
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, errors.New("tui: config is required")
	}
	orderList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	orderList.Title = "Errands"
	orderList.SetShowStatusBar(false)
	orderList.SetFilteringEnabled(false)

	app := &App{
		state:     stateOrderList,
		config:    cfg,
		viewer:    order.Viewer{UserID: order.UserID(strings.TrimSpace(cfg.File.Viewer.UserID))},
		logger:    zap.NewNop(),
		orderList: orderList,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.backend == nil {
		app.backend = api.New(cfg.File.API.BaseURL, cfg.File.API.Token,
			api.WithTimeout(cfg.File.API.Timeout),
			api.WithLogger(app.logger.Named("api")),
		)
	}
	if app.bus == nil {
		app.bus = eventbus.New()
	}
	app.sub = app.bus.Subscribe(eventbus.TopicOrdersChanged)
	app.ctx, app.cancel = context.WithCancel(context.Background())
	if app.viewer.UserID.IsZero() {
		app.statusMsg = "Browsing anonymously · set viewer.user_id or pass --user to act on orders"
	}
	app.logInfo("Session opened · viewer %s", app.viewerLabel())
	return app, nil
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) viewerLabel() string {
	if a.viewer.UserID.IsZero() {
		return "anonymous"
	}
	return string(a.viewer.UserID)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.loadOrders(), a.watchOrdersChanged()}
	if !a.initialOrder.IsZero() {
		cmds = append(cmds, a.openDetail(a.initialOrder))
	}
	return tea.Batch(cmds...)
}

// Close releases the open session and the bus subscription. Call it after
// the program exits.
func (a *App) Close() {
	a.closeDetail()
	a.sub.Close()
	if a.cancel != nil {
		a.cancel()
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.orderList.SetSize(max(0, msg.Width-6), max(0, msg.Height-12))
		if a.detail != nil {
			a.detail.resize(msg.Width)
		}
		return a, nil

	case ordersLoadedMsg:
		if msg.seq != a.loadSeq {
			return a, nil
		}
		a.loading = false
		if msg.err != nil {
			a.listErr = api.Message(msg.err)
			a.logWarn("Order list failed: %s", a.listErr)
			return a, nil
		}
		a.listErr = ""
		a.installOrders(msg.orders)
		return a, nil

	case ordersChangedMsg:
		a.logInfo("Order %s changed (%s), reloading list", order.ID(msg.event.OrderID).Short(), msg.event.Action)
		return a, tea.Batch(a.loadOrders(), a.watchOrdersChanged())

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.state == stateOrderDetail && a.detail != nil {
			cmd, handled := a.detail.handleKey(msg)
			if handled {
				return a, cmd
			}
			if msg.String() == "esc" {
				return a.returnToList()
			}
			return a, nil
		}
		switch msg.String() {
		case "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "Refreshing orders..."
			return a, a.loadOrders()
		case "tab":
			a.categoryIdx = (a.categoryIdx + 1) % len(categoryFilters)
			a.statusMsg = fmt.Sprintf("Category: %s", categoryFilters[a.categoryIdx])
			return a, a.loadOrders()
		case "enter":
			item, ok := a.orderList.SelectedItem().(orderItem)
			if !ok {
				return a, nil
			}
			return a, a.openDetail(item.order.ID)
		}
	}

	var cmds []tea.Cmd
	switch a.state {
	case stateOrderList:
		if _, isKey := msg.(tea.KeyMsg); isKey {
			var listCmd tea.Cmd
			a.orderList, listCmd = a.orderList.Update(msg)
			cmds = append(cmds, listCmd)
		}
	case stateOrderDetail:
		if a.detail != nil {
			cmds = append(cmds, a.detail.Update(msg))
		}
	}
	return a, tea.Batch(cmds...)
}

// loadOrders fetches the list for the current category. Replies to older
// loads are dropped by sequence number.
func (a *App) loadOrders() tea.Cmd {
	a.loadSeq++
	a.loading = true
	var (
		seq     = a.loadSeq
		backend = a.backend
		parent  = a.ctx
		filter  = api.ListFilter{Category: categoryFilters[a.categoryIdx]}
	)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, listLoadTimeout)
		defer cancel()
		orders, err := backend.ListOrders(ctx, filter)
		return ordersLoadedMsg{seq: seq, orders: orders, err: err}
	}
}

// watchOrdersChanged waits for the next bus event. It returns nil once the
// subscription is closed.
func (a *App) watchOrdersChanged() tea.Cmd {
	events := a.sub.Events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return ordersChangedMsg{event: event}
	}
}

func (a *App) installOrders(orders []order.Order) {
	a.orders = orders
	items := make([]list.Item, len(orders))
	for i := range orders {
		items[i] = orderItem{order: orders[i], viewer: a.viewer}
	}
	a.orderList.SetItems(items)
	if idx := a.orderList.Index(); idx >= len(items) && len(items) > 0 {
		a.orderList.Select(len(items) - 1)
	}
}

func (a *App) openDetail(id order.ID) tea.Cmd {
	a.closeDetail()
	opts := detail.Options{
		OrderID:        id,
		Viewer:         a.viewer,
		Backend:        a.backend,
		Logger:         a.logger.Named("detail"),
		Logbook:        a.logbook,
		Bus:            a.bus,
		PollInterval:   a.config.File.Polling.Interval,
		NoticeDuration: a.config.File.Notices.Duration,
	}
	if a.sessionHook != nil {
		a.sessionHook(&opts)
	}
	session, err := detail.New(opts)
	if err != nil {
		a.statusMsg = fmt.Sprintf("Cannot open order: %v", err)
		return nil
	}
	a.detail = newDetailView(a, session)
	a.detail.resize(a.width)
	a.state = stateOrderDetail
	a.statusMsg = ""
	return session.Init()
}

func (a *App) closeDetail() {
	if a.detail == nil {
		return
	}
	a.detail.session.Close()
	a.detail = nil
}

// returnToList closes the detail session. Its pending ticks and replies are
// ignored from here on.
func (a *App) returnToList() (tea.Model, tea.Cmd) {
	a.closeDetail()
	a.state = stateOrderList
	a.statusMsg = ""
	return a, nil
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(28, width/4)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}
	var content string
	switch a.state {
	case stateOrderList:
		content = a.renderOrderList()
	case stateOrderDetail:
		if a.detail != nil {
			content = a.detail.View()
		} else {
			content = "Loading order..."
		}
	}
	return a.renderBoard(content, leftWidth, rightWidth)
}

func (a *App) renderOrderList() string {
	var lines []string
	if a.listErr != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render("⚠ "+a.listErr))
	}
	switch {
	case len(a.orders) > 0:
		lines = append(lines, a.orderList.View())
	case a.loading:
		lines = append(lines, "Loading orders...")
	default:
		lines = append(lines, "No orders in this category.")
	}
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Enter → open    Tab → category    r → refresh    q → quit")
	lines = append(lines, hint)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) renderBoard(mainContent string, leftWidth, rightWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ UNIRUN")
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(mainContent)
	body := leftBox
	if rightWidth > 0 {
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(a.renderSessionPanel())
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

// renderSessionPanel summarizes who is signed in and how the open screen is
// syncing.
func (a *App) renderSessionPanel() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("Session")
	lines := []string{
		fmt.Sprintf("User: %s", a.viewerLabel()),
		fmt.Sprintf("Category: %s", categoryFilters[a.categoryIdx]),
		fmt.Sprintf("Orders: %d", len(a.orders)),
	}
	if a.detail != nil {
		p := a.detail.session.Poller()
		lines = append(lines,
			"",
			fmt.Sprintf("Order #%s", a.detail.session.OrderID().Short()),
			fmt.Sprintf("Sync: %s", p.State()),
			fmt.Sprintf("Fetches: %d (skipped %d)", p.Fetches(), p.Skipped()),
		)
	}
	body := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Package tui renders the chat feed in a terminal.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/feed/httpsource"
	"github.com/shinyyama/musclecat-chat/internal/model"
)

const sendTimeout = 15 * time.Second

// Sender posts messages to the server.
type Sender interface {
	Send(ctx context.Context, in httpsource.SendRequest) (*model.Message, error)
}

type Options struct {
	Feed        *feed.Feed
	Sender      Sender
	UID         string
	Role        model.Role
	DisplayName string
	Logger      *zap.Logger
}

type viewMsg feed.View

type loadedMsg struct {
	err error
}

type sentMsg struct {
	clientID string
	err      error
}

type Model struct {
	feed   *feed.Feed
	sender Sender
	uid    string
	role   model.Role
	name   string
	log    *zap.Logger

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	scroll   *feed.ScrollCoordinator
	updates  chan feed.View

	view    feed.View
	status  string
	width   int
	height  int
	ready   bool
	loading bool
}

func New(opts Options) *Model {
	in := textinput.New()
	in.Placeholder = "메시지를 입력하세요"
	in.CharLimit = 2000
	in.Prompt = "› "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(statusColor)

	sc := feed.NewScrollCoordinator()
	sc.FollowThreshold = 1
	sc.LoadThreshold = 0

	m := &Model{
		feed:     opts.Feed,
		sender:   opts.Sender,
		uid:      opts.UID,
		role:     opts.Role,
		name:     opts.DisplayName,
		log:      opts.Logger,
		viewport: viewport.New(0, 0),
		input:    in,
		spin:     sp,
		scroll:   sc,
		updates:  make(chan feed.View, 1),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.role == "" {
		m.role = model.RoleCustomer
	}
	m.feed.OnChange(m.publish)
	return m
}

// publish keeps only the newest view; the UI always renders the latest state.
func (m *Model) publish(v feed.View) {
	for {
		select {
		case m.updates <- v:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

func (m *Model) waitForView() tea.Cmd {
	return func() tea.Msg {
		return viewMsg(<-m.updates)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.waitForView())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		first := !m.ready
		m.resize()
		m.render(first)
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown, tea.KeyHome, tea.KeyEnd:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, tea.Batch(cmd, m.maybeLoadOlder())
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.maybeLoadOlder())
	case viewMsg:
		m.applyView(feed.View(msg))
		return m, m.waitForView()
	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.log.Warn("load older failed", zap.Error(msg.err))
			m.status = "이전 메시지를 불러오지 못했습니다: " + msg.err.Error()
		}
		m.view = m.feed.View()
		m.render(false)
		return m, nil
	case sentMsg:
		if msg.err != nil {
			m.log.Warn("send failed", zap.String("client_id", msg.clientID), zap.Error(msg.err))
			m.feed.DropPending(msg.clientID)
			m.status = "전송 실패: " + msg.err.Error()
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyView renders a feed update. While older history is being prepended the
// render waits for the load to finish so the reading position can be kept.
func (m *Model) applyView(v feed.View) {
	prev := m.view.Messages
	m.view = v
	if m.scroll.Preparing() {
		return
	}
	follow := m.scroll.ShouldFollow(float64(m.viewport.YOffset), float64(m.viewport.Height), float64(m.viewport.TotalLineCount()))
	m.render(follow && feed.AppendedNewer(prev, v.Messages))
}

func (m *Model) render(toBottom bool) {
	if !m.ready {
		return
	}
	offset := m.viewport.YOffset
	m.viewport.SetContent(renderMessages(m.view, m.feed, m.uid, m.viewport.Width))
	if delta := m.scroll.EndPrepend(float64(m.viewport.TotalLineCount())); delta > 0 {
		m.viewport.SetYOffset(offset + int(delta))
		return
	}
	if toBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) maybeLoadOlder() tea.Cmd {
	if m.loading || !m.view.HasMore || !m.scroll.ShouldLoadOlder(float64(m.viewport.YOffset)) {
		return nil
	}
	m.loading = true
	m.status = ""
	m.scroll.BeginPrepend(float64(m.viewport.TotalLineCount()))
	f := m.feed
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return loadedMsg{err: f.LoadOlder(ctx)}
	}
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return nil
	}
	clientID := uuid.NewString()
	m.feed.AddPending(clientID, model.Message{
		AuthorID:   m.uid,
		AuthorRole: m.role,
		SenderName: m.name,
		Kind:       model.KindText,
		Text:       text,
	})
	m.status = ""
	sender := m.sender
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err := sender.Send(ctx, httpsource.SendRequest{Kind: model.KindText, Text: text, ClientID: clientID})
		return sentMsg{clientID: clientID, err: err}
	}
}

func (m *Model) resize() {
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight
	m.input.Width = m.width - 4
	m.ready = true
}

func (m *Model) View() string {
	if !m.ready {
		return m.spin.View() + " 연결 중…"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		"",
		m.input.View(),
		statusStyle.Render(m.statusLine()),
	)
}

func (m *Model) statusLine() string {
	switch {
	case m.status != "":
		return m.status
	case m.loading || m.view.Loading:
		return m.spin.View() + " 이전 메시지 불러오는 중"
	case m.view.Status == feed.StatusStale:
		return "연결이 끊겼습니다. 표시된 내용이 최신이 아닐 수 있습니다"
	case m.view.Status == feed.StatusReconnecting:
		return m.spin.View() + " 재연결 중"
	case m.view.Status == feed.StatusConnecting:
		return m.spin.View() + " 연결 중"
	case !m.view.HasMore:
		return "대화의 처음입니다"
	}
	return "실시간"
}

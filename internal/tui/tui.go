// Package tui provides a Bubble Tea terminal user interface for songmesh.
//
// The interface has two modes, switched with tab: finding songs by title
// and downloading them, and uploading a local MP3 to the configured node.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/handiism/songmesh/internal/client"
	"github.com/handiism/songmesh/internal/config"
	"github.com/handiism/songmesh/internal/download"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/upload"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7AA2F7")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	songStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			Foreground(lipgloss.Color("#4ECDC4"))
)

// Mode selects what the input field is for.
type Mode int

const (
	ModeFind Mode = iota
	ModeUpload
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateResolving
	StateDownloading
	StateUploading
	StateComplete
	StateError
)

// maxLogs bounds the log lines kept on screen.
const maxLogs = 10

var errCancelled = errors.New("cancelled by user")

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   model.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	mode      Mode
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	client    *client.Client
	logs      []LogEntry
	err       error

	ctx    context.Context
	cancel context.CancelFunc
	events chan model.ProgressEvent

	manager *download.Manager
	songs   []string
	saved   []string
	result  *upload.Result

	totalFiles      int32
	downloadedFiles int32
	totalBytes      int64
	receivedBytes   int64

	// Options
	cover       bool
	playlist    bool
	removeCover bool
	verbose     bool

	width  int
	height int
}

// NewModel creates a new TUI model talking to c.
func NewModel(settings *config.Settings, c *client.Client) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	m := Model{
		mode:      ModeFind,
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		client:    c,
		playlist:  settings.Download.CreatePlaylist,
		cover:     settings.Download.SaveCoverArtInFolder,
	}
	m.reset()
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// ProgressMsg carries one event from a running download or upload.
	ProgressMsg struct {
		Event model.ProgressEvent
	}

	// ResolveDoneMsg is sent once every title was looked up.
	ResolveDoneMsg struct {
		Songs   []string
		Manager *download.Manager
		Err     error
	}

	// DownloadDoneMsg is sent when all downloads complete.
	DownloadDoneMsg struct {
		Saved    []string
		Received int64
		Total    int64
		Files    int32
		TotalF   int32
		Err      error
	}

	// UploadDoneMsg is sent when an upload finishes.
	UploadDoneMsg struct {
		Result *upload.Result
		Err    error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.busy() {
				m.cancel()
				m.state = StateError
				m.err = errCancelled
			}
			return m, nil

		case "tab":
			if m.state == StateInput {
				m.mode = 1 - m.mode
				m.textInput.SetValue("")
				m.textInput.Placeholder = m.placeholder()
			}
			return m, nil

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.textInput.Value()) != "" {
				if m.mode == ModeUpload {
					m.state = StateUploading
					return m, tea.Batch(m.startUpload(), m.waitForEvent(), m.spinner.Tick)
				}
				m.state = StateResolving
				return m, tea.Batch(m.resolve(), m.waitForEvent(), m.spinner.Tick)
			}

		case "ctrl+k":
			if m.state == StateInput && m.mode == ModeFind {
				m.cover = !m.cover
			}
			return m, nil

		case "ctrl+p":
			if m.state == StateInput && m.mode == ModeFind {
				m.playlist = !m.playlist
			}
			return m, nil

		case "ctrl+x":
			if m.state == StateInput && m.mode == ModeUpload {
				m.removeCover = !m.removeCover
			}
			return m, nil

		case "ctrl+l":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}
			return m, nil

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				m.reset()
				return m, nil
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		if msg.Event.Level != model.LevelVerbose || m.verbose {
			m.logs = append(m.logs, LogEntry{Message: msg.Event.Message, Level: msg.Event.Level})
			if len(m.logs) > maxLogs {
				m.logs = m.logs[len(m.logs)-maxLogs:]
			}
		}
		if m.busy() {
			cmds = append(cmds, m.waitForEvent())
		}

	case ResolveDoneMsg:
		if m.state != StateResolving {
			return m, nil
		}
		switch {
		case msg.Err != nil:
			m.state = StateError
			m.err = msg.Err
		case len(msg.Songs) == 0:
			m.state = StateError
			m.err = errors.New("no node holds any of these songs")
		default:
			m.songs = msg.Songs
			m.manager = msg.Manager
			m.state = StateDownloading
			cmds = append(cmds, m.startDownload(), m.tickProgress())
		}

	case DownloadDoneMsg:
		m.saved = msg.Saved
		m.receivedBytes = msg.Received
		m.totalBytes = msg.Total
		m.downloadedFiles = msg.Files
		m.totalFiles = msg.TotalF
		m.finish(msg.Err)

	case UploadDoneMsg:
		m.result = msg.Result
		m.finish(msg.Err)

	case TickMsg:
		if m.manager != nil && m.state == StateDownloading {
			received, total, files, totalFiles := m.manager.GetProgress()
			m.receivedBytes = received
			m.totalBytes = total
			m.downloadedFiles = files
			m.totalFiles = totalFiles

			var percent float64
			if total > 0 {
				percent = float64(received) / float64(total)
			}
			cmds = append(cmds, m.progress.SetPercent(percent), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// reset prepares the model for a new round of input.
func (m *Model) reset() {
	if m.cancel != nil {
		m.cancel()
	}
	m.state = StateInput
	m.logs = nil
	m.err = nil
	m.songs = nil
	m.saved = nil
	m.result = nil
	m.manager = nil
	m.downloadedFiles = 0
	m.totalFiles = 0
	m.receivedBytes = 0
	m.totalBytes = 0
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.events = make(chan model.ProgressEvent, 64)
	m.textInput.SetValue("")
	m.textInput.Placeholder = m.placeholder()
	m.textInput.Focus()
}

// finish moves a busy model to its final state.
func (m *Model) finish(err error) {
	switch {
	case m.ctx.Err() != nil:
		m.state = StateError
		m.err = errCancelled
	case err != nil:
		m.state = StateError
		m.err = err
	default:
		m.state = StateComplete
	}
}

func (m Model) busy() bool {
	return m.state == StateResolving || m.state == StateDownloading || m.state == StateUploading
}

func (m Model) placeholder() string {
	if m.mode == ModeUpload {
		return "/path/to/song.mp3"
	}
	return "Artist - Title; Another Artist - Another Title"
}

// emit forwards an event to the UI without ever blocking the worker.
func (m Model) emit(events chan<- model.ProgressEvent) func(model.ProgressEvent) {
	return func(e model.ProgressEvent) {
		select {
		case events <- e:
		default:
		}
	}
}

// waitForEvent delivers the next progress event as a ProgressMsg.
func (m Model) waitForEvent() tea.Cmd {
	events, done := m.events, m.ctx.Done()
	return func() tea.Msg {
		select {
		case e := <-events:
			return ProgressMsg{Event: e}
		case <-done:
			return nil
		}
	}
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// SplitTitles splits the find input on semicolons.
func SplitTitles(input string) []string {
	var titles []string
	for _, part := range strings.Split(input, ";") {
		if part = strings.TrimSpace(part); part != "" {
			titles = append(titles, part)
		}
	}
	return titles
}

// resolve looks up every title and prepares a download manager.
func (m Model) resolve() tea.Cmd {
	ctx, events := m.ctx, m.events
	titles := SplitTitles(m.textInput.Value())

	settings := *m.settings
	settings.Download.CreatePlaylist = m.playlist
	settings.Download.SaveCoverArtInFolder = m.cover
	c := m.client
	emit := m.emit(events)

	return func() tea.Msg {
		manager := download.NewManager(&settings, c, emit)
		if err := manager.Initialize(ctx, strings.Join(titles, "\n")); err != nil {
			return ResolveDoneMsg{Err: err}
		}

		var names []string
		for _, s := range manager.Songs() {
			names = append(names, s.Title)
		}
		return ResolveDoneMsg{Songs: names, Manager: manager}
	}
}

// startDownload starts the actual download in background.
func (m Model) startDownload() tea.Cmd {
	ctx, manager := m.ctx, m.manager
	return func() tea.Msg {
		if manager == nil {
			return DownloadDoneMsg{Err: errors.New("no songs resolved")}
		}

		err := manager.StartDownloads(ctx)
		received, total, files, totalFiles := manager.GetProgress()
		return DownloadDoneMsg{
			Saved:    manager.SavedPaths(),
			Received: received,
			Total:    total,
			Files:    files,
			TotalF:   totalFiles,
			Err:      err,
		}
	}
}

// startUpload runs the upload pipeline on the entered path.
func (m Model) startUpload() tea.Cmd {
	ctx, c := m.ctx, m.client
	req := model.UploadRequest{Path: strings.TrimSpace(m.textInput.Value())}
	if m.removeCover {
		req.Cover = model.CoverRemove
	}
	opts := upload.Options{
		CoverMaxSize: m.settings.Cover.MaxSize,
		CoverToJPEG:  m.settings.Cover.ConvertToJPEG,
		MaxFileSize:  m.settings.Node.MaxUploadSize,
	}
	emit := m.emit(m.events)

	return func() tea.Msg {
		submit := upload.SubmitFunc(func(ctx context.Context, data []byte) (*model.StoreResult, error) {
			return c.AddSong(ctx, data)
		})
		res, err := upload.NewPipeline(submit, opts, emit).Run(ctx, req)
		return UploadDoneMsg{Result: res, Err: err}
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("songmesh"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Songs across your nodes at " + m.settings.Client.Address))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateResolving:
		b.WriteString(m.viewBusy("Looking up songs..."))
	case StateUploading:
		b.WriteString(m.viewBusy("Uploading..."))
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.helpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	find, up := dimStyle.Render("Find"), dimStyle.Render("Upload")
	if m.mode == ModeFind {
		find = activeTabStyle.Render("Find")
	} else {
		up = activeTabStyle.Render("Upload")
	}
	b.WriteString(find + "   " + up)
	b.WriteString("\n\n")

	if m.mode == ModeFind {
		b.WriteString(subtitleStyle.Render("Enter song titles:"))
	} else {
		b.WriteString(subtitleStyle.Render("Enter an MP3 path:"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	if m.mode == ModeFind {
		fmt.Fprintf(&b, "  %s Save covers (ctrl+k)\n", check(m.cover))
		fmt.Fprintf(&b, "  %s Create playlist (ctrl+p)\n", check(m.playlist))
	} else {
		fmt.Fprintf(&b, "  %s Remove embedded cover (ctrl+x)\n", check(m.removeCover))
	}
	fmt.Fprintf(&b, "  %s Verbose output (ctrl+l)\n", check(m.verbose))
	b.WriteString("\n")
	if m.mode == ModeFind {
		b.WriteString(dimStyle.Render("Download path: " + m.settings.Download.DownloadsPath))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) viewBusy(label string) string {
	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render(label))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())
	return b.String()
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	if len(m.songs) > 0 {
		b.WriteString(successStyle.Render(fmt.Sprintf("Found %d song(s):", len(m.songs))))
		b.WriteString("\n")
		for _, s := range m.songs {
			b.WriteString(songStyle.Render("  ♪ " + s))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	var percent float64
	if m.totalBytes > 0 {
		percent = float64(m.receivedBytes) / float64(m.totalBytes)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Files: %d/%d | Downloaded: %.2f MB",
		m.downloadedFiles,
		m.totalFiles,
		float64(m.receivedBytes)/1024/1024,
	)))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	if m.result != nil {
		return boxStyle.Render(fmt.Sprintf(
			"Upload complete\n\nTitle: %s\nHash:  %s\nFile:  %s",
			m.result.Title,
			m.result.FileHash,
			m.result.FileName,
		))
	}

	var b strings.Builder
	b.WriteString(boxStyle.Render(fmt.Sprintf(
		"Download complete\n\nSongs: %d\nFiles: %d\nSize: %.2f MB",
		len(m.saved),
		m.downloadedFiles,
		float64(m.receivedBytes)/1024/1024,
	)))
	b.WriteString("\n")
	for _, p := range m.saved {
		b.WriteString(dimStyle.Render("  " + p))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString("  " + m.err.Error())
	}
	if m.result != nil && m.result.State == upload.StateFailed {
		fmt.Fprintf(&b, "\n  (upload stopped after: %s)", m.result.FailedAt)
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case model.LevelError:
			style = errorStyle
			prefix = "✗"
		case model.LevelWarning:
			style = warningStyle
			prefix = "!"
		case model.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case model.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) helpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • tab: find/upload • esc: quit"
	case StateResolving, StateDownloading, StateUploading:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: start over • q: quit"
	}
	return ""
}

func check(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

// Run starts the TUI application.
func Run(settings *config.Settings) error {
	p := tea.NewProgram(NewModel(settings, client.NewFromSettings(settings)), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/glabrego/moments-cli/internal/app"
	"github.com/glabrego/moments-cli/internal/controller"
	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/mutation"
	"github.com/glabrego/moments-cli/internal/render"
	tuiactions "github.com/glabrego/moments-cli/internal/tui/actions"
	"github.com/glabrego/moments-cli/internal/tui/platform"
	tuitheme "github.com/glabrego/moments-cli/internal/tui/theme"
	"github.com/glabrego/moments-cli/internal/tui/view"
)

// Runtime is implemented by *app.Runtime.
type Runtime interface {
	tuiactions.Runtime
	Timelines() []feed.Timeline
	Timeline(name feed.Timeline) (*app.Timeline, error)
}

type Options struct {
	Logger       *log.Logger
	RelativeTime bool
	// SkipInitialReload starts from whatever the feeds already hold.
	SkipInitialReload bool
}

type clearStatusMsg struct {
	id int
}

type inputMode int

const (
	inputNone inputMode = iota
	inputSearch
	inputComment
)

type timelineView struct {
	name    feed.Timeline
	feed    *controller.Feed
	page    controller.RenderPage
	cursor  int
	pending map[string]bool
}

type Model struct {
	runtime   Runtime
	timelines []*timelineView
	active    int
	pageCh    chan feed.Timeline
	theme     tuitheme.Theme
	logger    *log.Logger

	showHelp      bool
	inDetail      bool
	detailTop     int
	width         int
	height        int
	loading       bool
	status        string
	statusID      int
	err           error
	input         inputMode
	prompt        textinput.Model
	commentTarget string
	relativeTime  bool
	showNumbers   bool
	skipReload    bool

	copyFn func(string) error
	nowFn  func() time.Time
}

func NewModel(rt Runtime, opts Options) (Model, error) {
	names := rt.Timelines()
	m := Model{
		runtime:      rt,
		pageCh:       make(chan feed.Timeline, len(names)+1),
		theme:        tuitheme.Default(),
		logger:       logging.OrDiscard(opts.Logger),
		relativeTime: opts.RelativeTime,
		skipReload:   opts.SkipInitialReload,
		prompt:       newPrompt(),
		copyFn:       platform.CopyToClipboard,
		nowFn:        time.Now,
	}
	for _, name := range names {
		t, err := rt.Timeline(name)
		if err != nil {
			return Model{}, err
		}
		tv := &timelineView{name: name, feed: t.Feed, pending: make(map[string]bool)}
		t.Feed.Subscribe(tuiactions.Notifier(name, m.pageCh))
		tv.page = t.Feed.Page()
		m.timelines = append(m.timelines, tv)
	}
	if len(m.timelines) == 0 {
		return Model{}, errors.New("no timelines to show")
	}
	return m, nil
}

func newPrompt() textinput.Model {
	ti := textinput.New()
	ti.CharLimit = 2000
	return ti
}

// openInput focuses the prompt for mode, prefilled with value.
func (m *Model) openInput(mode inputMode, label, value string) tea.Cmd {
	m.input = mode
	m.prompt.Prompt = label + ": "
	m.prompt.SetValue(value)
	m.prompt.CursorEnd()
	m.prompt.Focus()
	return textinput.Blink
}

func (m *Model) closeInput() {
	m.input = inputNone
	m.prompt.Blur()
	m.prompt.SetValue("")
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tuiactions.WaitForPageCmd(m.pageCh)}
	if !m.skipReload {
		for _, tv := range m.timelines {
			cmds = append(cmds, tuiactions.ReloadCmd(m.runtime, tv.name, feed.All, "init"))
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tuiactions.PageChangedMsg:
		m.syncAll()
		return m, tuiactions.WaitForPageCmd(m.pageCh)
	case tuiactions.ReloadSuccessMsg:
		m.loading = false
		m.err = nil
		m.syncAll()
		if msg.Source != "init" {
			tv := m.timelineByName(msg.Timeline)
			if tv != nil {
				return m.setStatus(fmt.Sprintf("Reloaded %s (%d items, %dms)", msg.Timeline, tv.page.TotalItems, msg.Duration.Milliseconds()), 3*time.Second)
			}
		}
		return m, nil
	case tuiactions.ReloadErrorMsg:
		m.loading = false
		m.status = ""
		m.err = msg.Err
		m.logger.Warn("reload failed", "timeline", msg.Timeline, "source", msg.Source, "err", msg.Err)
		m.syncAll()
		return m, nil
	case tuiactions.LikeResultMsg:
		if tv := m.timelineByName(msg.Timeline); tv != nil {
			delete(tv.pending, msg.ItemID)
		}
		m.syncAll()
		return m.mutationStatus("Like", msg.Outcome, msg.Err, likeVerb(msg.Item))
	case tuiactions.CommentResultMsg:
		if tv := m.timelineByName(msg.Timeline); tv != nil {
			delete(tv.pending, msg.ItemID)
		}
		m.syncAll()
		return m.mutationStatus("Comment", msg.Outcome, msg.Err, "Comment added")
	case tuiactions.CopySuccessMsg:
		m.err = nil
		return m.setStatus(msg.Status, 3*time.Second)
	case tuiactions.CopyErrorMsg:
		m.err = nil
		return m.setStatus(msg.Err.Error(), 4*time.Second)
	case clearStatusMsg:
		if msg.id == m.statusID {
			m.status = ""
		}
		return m, nil
	}
	if m.input != inputNone {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input != inputNone {
		return m.handleInputKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	tv := m.current()
	if m.inDetail {
		return m.handleDetailKey(msg, tv)
	}

	switch msg.String() {
	case "up", "k":
		if tv.cursor > 0 {
			tv.cursor--
		}
	case "down", "j":
		if tv.cursor < len(tv.page.Items)-1 {
			tv.cursor++
		}
	case "enter":
		if _, ok := m.currentItem(); ok {
			m.inDetail = true
			m.detailTop = 0
		}
	case "right", "n":
		if tv.feed.NextPage() {
			tv.cursor = 0
		}
		m.sync(tv)
	case "left", "p":
		if tv.feed.PrevPage() {
			tv.cursor = 0
		}
		m.sync(tv)
	case "g":
		tv.feed.GoToPage(1)
		tv.cursor = 0
		m.sync(tv)
	case "G":
		tv.feed.GoToPage(tv.page.TotalPages)
		tv.cursor = 0
		m.sync(tv)
	case "tab":
		m.active = (m.active + 1) % len(m.timelines)
	case "shift+tab":
		m.active = (m.active + len(m.timelines) - 1) % len(m.timelines)
	case "c":
		next := cycleValue(withAll(tv.feed.Facets().Categories), tv.page.Filter.Category)
		tv.feed.SetFilter(feed.FilterPatch{Category: &next})
		tv.cursor = 0
		m.sync(tv)
		return m.setStatus("Category: "+next, 3*time.Second)
	case "a":
		next := cycleValue(withAll(tv.feed.Facets().Attributes), tv.page.Filter.Attribute)
		tv.feed.SetFilter(feed.FilterPatch{Attribute: &next})
		tv.cursor = 0
		m.sync(tv)
		return m.setStatus("Attribute: "+next, 3*time.Second)
	case "t":
		tags := nextTagFilter(tv.feed.Facets().Tags, tv.page.Filter.RequiredTags)
		tv.feed.SetFilter(feed.FilterPatch{RequiredTags: &tags})
		tv.cursor = 0
		m.sync(tv)
		label := "any"
		if len(tags) > 0 {
			label = tags[0]
		}
		return m.setStatus("Tag: "+label, 3*time.Second)
	case "s":
		tv.feed.SetSort(tv.page.Sort.Next())
		m.sync(tv)
		return m.setStatus("Sort: "+tv.page.Sort.String(), 3*time.Second)
	case "+", "=":
		return m.resizePage(tv, 1)
	case "-":
		return m.resizePage(tv, -1)
	case "/":
		cmd := m.openInput(inputSearch, "Search", tv.page.Filter.SearchKeyword)
		return m, cmd
	case "ctrl+l":
		reset := feed.DefaultFilter()
		tags := []string{}
		tv.feed.SetFilter(feed.FilterPatch{
			Category:      &reset.Category,
			Attribute:     &reset.Attribute,
			RequiredTags:  &tags,
			SearchKeyword: &reset.SearchKeyword,
		})
		tv.cursor = 0
		m.sync(tv)
		return m.setStatus("Filters cleared", 3*time.Second)
	case "N":
		m.showNumbers = !m.showNumbers
	case "d":
		m.relativeTime = !m.relativeTime
	case "r":
		m.loading = true
		m.status = ""
		m.err = nil
		category := tv.page.Filter.Category
		return m, tuiactions.ReloadCmd(m.runtime, tv.name, category, "manual")
	case "l":
		return m.toggleLikeCurrent()
	case "C":
		return m.startComment()
	case "y":
		return m.copyCurrent()
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg, tv *timelineView) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.inDetail = false
		m.detailTop = 0
	case "up", "k":
		if m.detailTop > 0 {
			m.detailTop--
		}
	case "down", "j":
		item, ok := m.currentItem()
		if !ok {
			return m, nil
		}
		lines := view.DetailLines(item, m.contentWidth(), render.Wrap)
		if m.detailTop < view.DetailMaxTop(len(lines), m.detailBodyHeight()) {
			m.detailTop++
		}
	case "[":
		if tv.cursor > 0 {
			tv.cursor--
			m.detailTop = 0
		}
	case "]":
		if tv.cursor < len(tv.page.Items)-1 {
			tv.cursor++
			m.detailTop = 0
		}
	case "l":
		return m.toggleLikeCurrent()
	case "C":
		return m.startComment()
	case "y":
		return m.copyCurrent()
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
	default:
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	text := strings.TrimSpace(m.prompt.Value())
	mode := m.input
	m.closeInput()

	tv := m.current()
	switch mode {
	case inputSearch:
		tv.feed.SetFilter(feed.FilterPatch{SearchKeyword: &text})
		tv.cursor = 0
		m.sync(tv)
		if text == "" {
			return m.setStatus("Search cleared", 3*time.Second)
		}
		return m.setStatus(fmt.Sprintf("Search %q: %d matches", text, tv.page.TotalItems), 3*time.Second)
	case inputComment:
		if text == "" {
			return m.setStatus("Comment is empty, nothing sent", 3*time.Second)
		}
		tv.pending[m.commentTarget] = true
		return m, tuiactions.AddCommentCmd(m.runtime, tv.name, m.commentTarget, text)
	}
	return m, nil
}

func (m Model) toggleLikeCurrent() (tea.Model, tea.Cmd) {
	item, ok := m.currentItem()
	if !ok {
		return m, nil
	}
	tv := m.current()
	tv.pending[item.ID] = true
	return m, tuiactions.ToggleLikeCmd(m.runtime, tv.name, item.ID)
}

func (m Model) startComment() (tea.Model, tea.Cmd) {
	item, ok := m.currentItem()
	if !ok {
		return m, nil
	}
	m.commentTarget = item.ID
	cmd := m.openInput(inputComment, "Comment", "")
	return m, cmd
}

func (m Model) copyCurrent() (tea.Model, tea.Cmd) {
	item, ok := m.currentItem()
	if !ok {
		return m, nil
	}
	text := item.Title
	if body := render.Text(item.Body); body != "" {
		text += "\n\n" + body
	}
	return m, tuiactions.CopyTextCmd(text, m.copyFn)
}

func (m Model) resizePage(tv *timelineView, delta int) (tea.Model, tea.Cmd) {
	perPage := tv.feed.ItemsPerPage() + delta
	if perPage < 1 {
		return m, nil
	}
	if err := tv.feed.SetItemsPerPage(perPage); err != nil {
		m.err = err
		return m, nil
	}
	m.sync(tv)
	return m.setStatus(fmt.Sprintf("%d items per page", perPage), 3*time.Second)
}

// mutationStatus reports a finished mutation. Rolled back changes get a
// short-lived warning; the feed already shows the restored state.
func (m Model) mutationStatus(what string, outcome mutation.Outcome, err error, okStatus string) (tea.Model, tea.Cmd) {
	switch {
	case err == nil:
		m.err = nil
		return m.setStatus(okStatus, 3*time.Second)
	case errors.Is(err, feed.ErrAlreadyPending):
		return m.setStatus(what+" already in progress", 3*time.Second)
	case errors.Is(err, mutation.ErrEmptyComment):
		return m.setStatus("Comment is empty, nothing sent", 3*time.Second)
	case outcome == mutation.OutcomeReverted:
		m.logger.Warn("mutation reverted", "what", what, "err", err)
		m.err = err
		return m.setStatus(what+" failed, change reverted", 5*time.Second)
	default:
		m.err = err
		return m, nil
	}
}

func (m Model) setStatus(status string, after time.Duration) (tea.Model, tea.Cmd) {
	m.status = status
	m.statusID++
	return m, clearStatusCmd(m.statusID, after)
}

func clearStatusCmd(id int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return clearStatusMsg{id: id}
	})
}

func likeVerb(item feed.Item) string {
	if item.Liked {
		return "Liked"
	}
	return "Unliked"
}

func (m Model) current() *timelineView {
	return m.timelines[m.active]
}

func (m Model) timelineByName(name feed.Timeline) *timelineView {
	for _, tv := range m.timelines {
		if tv.name == name {
			return tv
		}
	}
	return nil
}

func (m Model) currentItem() (feed.Item, bool) {
	tv := m.current()
	if tv.cursor < 0 || tv.cursor >= len(tv.page.Items) {
		return feed.Item{}, false
	}
	return tv.page.Items[tv.cursor], true
}

// sync re-reads the page and keeps the cursor on the same item when it is
// still visible.
func (m Model) sync(tv *timelineView) {
	var anchor string
	if tv.cursor >= 0 && tv.cursor < len(tv.page.Items) {
		anchor = tv.page.Items[tv.cursor].ID
	}
	tv.page = tv.feed.Page()
	for i, item := range tv.page.Items {
		if item.ID == anchor {
			tv.cursor = i
			return
		}
	}
	if tv.cursor >= len(tv.page.Items) {
		tv.cursor = len(tv.page.Items) - 1
	}
	if tv.cursor < 0 {
		tv.cursor = 0
	}
}

func (m Model) syncAll() {
	for _, tv := range m.timelines {
		m.sync(tv)
	}
}

func withAll(values []string) []string {
	return append([]string{feed.All}, values...)
}

// cycleValue returns the value after current, wrapping around. An unknown
// current value restarts at the first entry.
func cycleValue(values []string, current string) string {
	if current == "" {
		current = feed.All
	}
	for i, v := range values {
		if v == current {
			return values[(i+1)%len(values)]
		}
	}
	return values[0]
}

// nextTagFilter steps through "no tag", then each known tag on its own.
func nextTagFilter(tags []string, current []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	if len(current) == 0 {
		return []string{tags[0]}
	}
	for i, tag := range tags {
		if tag == current[0] && i+1 < len(tags) {
			return []string{tags[i+1]}
		}
	}
	return []string{}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Moments"))
	b.WriteString(" ")
	b.WriteString(view.Tabs(m.timelineNames(), m.active, m.theme))
	b.WriteString("\n")
	b.WriteString(view.Toolbar(m.inDetail))
	b.WriteString("\n\n")

	switch {
	case m.showHelp:
		b.WriteString(helpView())
		b.WriteString("\n")
	case m.inDetail:
		b.WriteString(m.detailView())
	default:
		b.WriteString(m.listView())
	}

	if prompt := m.promptLine(); prompt != "" {
		b.WriteString(prompt)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.messagePanel())
	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	return b.String()
}

func (m Model) listView() string {
	tv := m.current()
	if m.loading && len(tv.page.Items) == 0 {
		return "Loading items...\n"
	}
	if len(tv.page.Items) == 0 {
		if tv.page.Filter.IsZero() {
			return "No items available.\n"
		}
		return "No items match the current filter.\n"
	}

	var b strings.Builder
	now := m.nowFn()
	for i, item := range tv.page.Items {
		b.WriteString(view.RenderItemLine(view.ItemLineParams{
			Item:         item,
			Now:          now,
			RelativeTime: m.relativeTime,
			ShowNumbers:  m.showNumbers,
			Position:     (tv.page.CurrentPage-1)*tv.feed.ItemsPerPage() + i,
			Active:       i == tv.cursor,
			Pending:      tv.pending[item.ID],
			Width:        m.contentWidth(),
		}, m.theme))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(view.PageBar(tv.page.Pages, tv.page.CurrentPage, m.theme))
	b.WriteString("\n")
	return b.String()
}

func (m Model) detailView() string {
	item, ok := m.currentItem()
	if !ok {
		return "No item selected.\n"
	}
	lines := view.DetailLines(item, m.contentWidth(), render.Wrap)
	return view.RenderDetailLines(lines, m.detailTop, m.detailBodyHeight())
}

func (m Model) promptLine() string {
	if m.input == inputNone {
		return ""
	}
	return m.prompt.View()
}

func (m Model) messagePanel() string {
	warning := ""
	if m.err != nil {
		warning = m.err.Error()
	} else if err := m.current().page.Err; err != nil {
		warning = err.Error()
	}
	return view.Message(m.loading, warning != "", m.status, warning, m.theme)
}

func (m Model) footer() string {
	tv := m.current()
	mode := "list"
	switch {
	case m.input == inputSearch:
		mode = "search"
	case m.input == inputComment:
		mode = "comment"
	case m.inDetail:
		mode = "detail"
	}
	filter := tv.page.Filter
	category := filter.Category
	if category == "" {
		category = feed.All
	}
	attribute := filter.Attribute
	if attribute == "" {
		attribute = feed.All
	}
	return view.Footer(view.FooterParams{
		Mode:       mode,
		Category:   category,
		Attribute:  attribute,
		Tags:       filter.RequiredTags,
		Sort:       tv.page.Sort.String(),
		Search:     filter.SearchKeyword,
		Page:       tv.page.CurrentPage,
		TotalPages: tv.page.TotalPages,
		TotalItems: tv.page.TotalItems,
		PerPage:    tv.feed.ItemsPerPage(),
	}, m.theme)
}

func (m Model) timelineNames() []string {
	names := make([]string, 0, len(m.timelines))
	for _, tv := range m.timelines {
		names = append(names, string(tv.name))
	}
	return names
}

func helpView() string {
	lines := []string{
		"Navigation:",
		"  j/k or arrows move, enter opens an item, esc returns to the list",
		"  left/right (or p/n) change page, g/G first/last page, +/- items per page",
		"  tab and shift+tab switch between timelines",
		"Filters:",
		"  c cycles category, a cycles attribute, t cycles tag, s cycles sort",
		"  / searches title, author, body and tags, ctrl+l clears all filters",
		"Actions:",
		"  l likes or unlikes, C comments, y copies the item text, r reloads",
		"  a failed like or comment is rolled back and reported in the status line",
		"Display:",
		"  N toggles numbering, d toggles relative dates",
	}
	return strings.Join(lines, "\n")
}

func (m Model) contentWidth() int {
	if m.width > 0 {
		return m.width - 1
	}
	return 100
}

func (m Model) detailBodyHeight() int {
	if m.height > 0 {
		used := 7
		if m.input != inputNone {
			used++
		}
		if h := m.height - used; h > 3 {
			return h
		}
	}
	return 16
}

// Package inspect shows an account's sessions, features and role permissions in
// the terminal.
package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/service"
)

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

type SessionLister interface {
	ListActiveSessions(ctx context.Context, userUUID, currentUUID string) ([]service.SessionView, error)
}

type FeatureResolver interface {
	GetFeaturesForUser(ctx context.Context, user *domain.User) ([]domain.FeatureDescription, error)
}

type PermissionLister interface {
	ListByRole(ctx context.Context, role domain.RoleName) ([]domain.Permission, error)
}

type Snapshot struct {
	Email       string                                      `json:"email"`
	UserUUID    string                                      `json:"user_uuid"`
	Roles       []string                                    `json:"roles"`
	Sessions    []service.SessionView                       `json:"sessions"`
	Features    []domain.FeatureDescription                 `json:"features"`
	Permissions map[domain.RoleName][]domain.PermissionName `json:"permissions"`
	CollectedAt time.Time                                   `json:"collected_at"`
}

type Collector struct {
	users       UserFinder
	sessions    SessionLister
	features    FeatureResolver
	permissions PermissionLister
	now         func() time.Time
}

func NewCollector(users UserFinder, sessions SessionLister, features FeatureResolver, permissions PermissionLister) *Collector {
	return &Collector{users: users, sessions: sessions, features: features, permissions: permissions, now: time.Now}
}

func (c *Collector) Collect(ctx context.Context, email string) (Snapshot, error) {
	user, err := c.users.FindByEmail(ctx, email)
	if err != nil {
		return Snapshot{}, fmt.Errorf("find user %s: %w", email, err)
	}
	sessions, err := c.sessions.ListActiveSessions(ctx, user.UUID, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("list sessions: %w", err)
	}
	features, err := c.features.GetFeaturesForUser(ctx, user)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve features: %w", err)
	}

	perms := make(map[domain.RoleName][]domain.PermissionName, len(user.Roles))
	for _, role := range user.Roles {
		list, err := c.permissions.ListByRole(ctx, role.Name)
		if err != nil {
			return Snapshot{}, fmt.Errorf("list permissions for %s: %w", role.Name, err)
		}
		names := make([]domain.PermissionName, 0, len(list))
		for _, p := range list {
			names = append(names, p.Name)
		}
		perms[role.Name] = names
	}

	return Snapshot{
		Email:       user.Email,
		UserUUID:    user.UUID,
		Roles:       user.RoleNames(),
		Sessions:    sessions,
		Features:    features,
		Permissions: perms,
		CollectedAt: c.now().UTC(),
	}, nil
}

// Summary is the one-line-per-fact form used for --ci output.
func Summary(s Snapshot) []string {
	lines := []string{
		"user=" + s.UserUUID,
		"roles=" + strings.Join(s.Roles, ","),
		fmt.Sprintf("sessions=%d", len(s.Sessions)),
		fmt.Sprintf("features=%d", len(s.Features)),
	}
	for _, f := range s.Features {
		lines = append(lines, fmt.Sprintf("feature %s expires_at=%d", f.Identifier, f.ExpiresAt))
	}
	return lines
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	activeTabStyle = tabStyle.Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	headerStyle    = lipgloss.NewStyle().Underline(true)
)

var tabs = []string{"Sessions", "Features", "Permissions"}

type snapshotMsg struct {
	snapshot Snapshot
	err      error
}

type Model struct {
	email    string
	collect  func(ctx context.Context, email string) (Snapshot, error)
	ctx      context.Context
	snapshot Snapshot
	err      error
	loading  bool
	tab      int
}

func NewModel(ctx context.Context, email string, collect func(ctx context.Context, email string) (Snapshot, error)) Model {
	return Model{ctx: ctx, email: email, collect: collect, loading: true}
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.collect(m.ctx, m.email)
		return snapshotMsg{snapshot: snap, err: err}
	}
}

func (m Model) Init() tea.Cmd { return m.load() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "tab", "right", "l":
			m.tab = (m.tab + 1) % len(tabs)
		case "shift+tab", "left", "h":
			m.tab = (m.tab + len(tabs) - 1) % len(tabs)
		case "r":
			m.loading = true
			return m, m.load()
		}
	case snapshotMsg:
		m.loading = false
		m.snapshot, m.err = msg.snapshot, msg.err
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("authsvc inspect " + m.email))
	b.WriteString("\n\n")

	rendered := make([]string, len(tabs))
	for i, name := range tabs {
		if i == m.tab {
			rendered[i] = activeTabStyle.Render(name)
		} else {
			rendered[i] = tabStyle.Render(name)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(mutedStyle.Render("loading..."))
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	default:
		b.WriteString(renderTab(m.snapshot, m.tab))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("tab: switch view  r: reload  q: quit"))
	return b.String()
}

func renderTab(s Snapshot, tab int) string {
	switch tab {
	case 1:
		return renderFeatures(s)
	case 2:
		return renderPermissions(s)
	default:
		return renderSessions(s)
	}
}

func renderSessions(s Snapshot) string {
	if len(s.Sessions) == 0 {
		return mutedStyle.Render("no active sessions")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-36s  %-9s  %-20s  %s", "UUID", "KIND", "EXPIRES", "USER AGENT")))
	for _, v := range s.Sessions {
		kind := "persisted"
		if v.Ephemeral {
			kind = "ephemeral"
		}
		fmt.Fprintf(&b, "\n%-36s  %-9s  %-20s  %s", v.UUID, kind, v.ExpiresAt.UTC().Format(time.DateTime), v.UserAgent)
	}
	return b.String()
}

func renderFeatures(s Snapshot) string {
	if len(s.Features) == 0 {
		return mutedStyle.Render("no features")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-32s  %-16s  %s", "IDENTIFIER", "ROLE", "EXPIRES")))
	for _, f := range s.Features {
		expires := "-"
		if f.ExpiresAt > 0 {
			expires = time.UnixMicro(f.ExpiresAt).UTC().Format(time.DateTime)
		}
		fmt.Fprintf(&b, "\n%-32s  %-16s  %s", f.Identifier, f.RoleName, expires)
	}
	return b.String()
}

func renderPermissions(s Snapshot) string {
	if len(s.Permissions) == 0 {
		return mutedStyle.Render("no roles")
	}
	roles := make([]string, 0, len(s.Permissions))
	for role := range s.Permissions {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	var b strings.Builder
	for i, role := range roles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(role))
		for _, p := range s.Permissions[domain.RoleName(role)] {
			b.WriteString("\n  " + string(p))
		}
	}
	return b.String()
}

// Run starts the interactive view and blocks until the user quits.
func Run(ctx context.Context, email string, c *Collector) error {
	_, err := tea.NewProgram(NewModel(ctx, email, c.Collect), tea.WithContext(ctx), tea.WithAltScreen()).Run()
	return err
}

package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/padillasconcrete/siteapi/internal/core"
)

const timeLayout = "2006-01-02 15:04:05Z"

// TableFormatter renders listings as ASCII tables, or as Markdown tables
// when Markdown is set.
type TableFormatter struct {
	Markdown bool
}

func (f *TableFormatter) FormatAttemptLogs(logs []core.AttemptLog) (string, error) {
	t := f.writer()
	t.AppendHeader(table.Row{"Key", "Attempts", "Latest", "Updated"})
	for _, l := range logs {
		t.AppendRow(table.Row{l.Key, len(l.Attempts), formatTime(l.Latest()), formatTime(l.UpdatedAt)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d key(s)", len(logs)), "", ""})
	return f.render(t), nil
}

func (f *TableFormatter) FormatMessages(messages []core.ContactMessage) (string, error) {
	t := f.writer()
	t.AppendHeader(table.Row{"Received", "Name", "Email", "Phone", "Service", "Message", "Notified"})
	for _, m := range messages {
		t.AppendRow(table.Row{
			formatTime(m.ReceivedAt),
			m.Name,
			m.Email,
			m.Phone,
			m.Service,
			truncate(m.Message, 40),
			yesNo(m.Notified),
		})
	}
	return f.render(t), nil
}

func (f *TableFormatter) FormatUsers(users []core.User) (string, error) {
	t := f.writer()
	t.AppendHeader(table.Row{"ID", "Username", "Role", "Must Change Password", "Created"})
	for _, u := range users {
		t.AppendRow(table.Row{u.ID, u.Username, string(u.Role), yesNo(u.MustChangePassword), formatTime(u.CreatedAt)})
	}
	return f.render(t), nil
}

func (f *TableFormatter) FormatProjects(projects []core.Project) (string, error) {
	t := f.writer()
	t.AppendHeader(table.Row{"ID", "Title", "Location", "Photos", "Before/After", "Updated"})
	for _, p := range projects {
		t.AppendRow(table.Row{
			p.ID,
			truncate(p.Title, 40),
			p.Location,
			len(p.Photos),
			beforeAfter(p),
			formatTime(p.UpdatedAt),
		})
	}
	return f.render(t), nil
}

func (f *TableFormatter) writer() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func beforeAfter(p core.Project) string {
	var parts []string
	if p.BeforePhoto != nil {
		parts = append(parts, "before")
	}
	if p.AfterPhoto != nil {
		parts = append(parts, "after")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "+")
}

// Package format renders task data into deliverable HTML message bodies.
package format

import (
	"fmt"
	"strings"

	"github.com/fleetline/taskbridge/internal/directory"
	"github.com/fleetline/taskbridge/internal/sync"
	"github.com/fleetline/taskbridge/internal/tasks"
	"github.com/fleetline/taskbridge/internal/telegram"
)

// HTMLFormatter is the default body formatter. It is a pure function over
// the snapshot and resolved recipients; no network, no state.
type HTMLFormatter struct{}

// NewHTMLFormatter creates the default formatter.
func NewHTMLFormatter() *HTMLFormatter {
	return &HTMLFormatter{}
}

func (f *HTMLFormatter) FormatTaskBody(task *tasks.Snapshot, recipients map[int64]directory.Person) sync.FormattedBody {
	var b strings.Builder
	title := telegram.EscapeHTML(strings.TrimSpace(task.Title))
	if title == "" {
		title = "Task"
	}
	fmt.Fprintf(&b, "<b>%s</b>", title)
	if kind := strings.TrimSpace(task.Kind); kind != "" {
		fmt.Fprintf(&b, "\n#%s", telegram.EscapeHTML(kind))
	}
	if names := assigneeNames(task.AssigneeIDs, recipients); names != "" {
		fmt.Fprintf(&b, "\n\n👤 %s", names)
	}

	body := sync.FormattedBody{
		Text:    b.String(),
		Caption: "<b>" + title + "</b>",
	}
	if comment := strings.TrimSpace(task.Comment); comment != "" {
		body.CommentText = "💬 " + telegram.EscapeHTML(comment)
	}
	return body
}

func assigneeNames(ids []int64, recipients map[int64]directory.Person) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		person, ok := recipients[id]
		switch {
		case ok && person.Username != "":
			names = append(names, "@"+telegram.EscapeHTML(person.Username))
		case ok && person.Name != "":
			names = append(names, telegram.EscapeHTML(person.Name))
		default:
			names = append(names, fmt.Sprintf("#%d", id))
		}
	}
	return strings.Join(names, ", ")
}

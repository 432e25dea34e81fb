package views

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/patrickwarner/flagdesk/internal/detail"
	"github.com/patrickwarner/flagdesk/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RenderTable writes items as an aligned table.
func RenderTable(w io.Writer, items []models.FlaggedItem) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPRIORITY\tFLAGGED BY\tFLAGGED AT\tASSIGNED TO\tREASON")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.Type, it.Status.Label(), it.Priority.Display(), orDash(it.FlaggedByName),
			it.FlaggedAt.Local().Format(timeLayout), orDash(it.AssigneeName()), truncate(it.Reason, 48))
	}
	return tw.Flush()
}

// RenderAdmin writes the tab summary followed by the selected tab's table.
func RenderAdmin(w io.Writer, d AdminDashboard, selected models.Status) error {
	var parts []string
	for _, t := range d.Tabs {
		mark := " "
		if t.Status == selected {
			mark = "*"
		}
		parts = append(parts, fmt.Sprintf("%s%s (%d)", mark, t.Label, t.Count))
	}
	fmt.Fprintln(w, strings.Join(parts, "   "))
	tab, ok := d.Tab(selected)
	if !ok {
		return fmt.Errorf("no tab for status %q", selected)
	}
	if len(tab.Items) == 0 {
		_, err := fmt.Fprintln(w, "No flags.")
		return err
	}
	return RenderTable(w, tab.Items)
}

// RenderFaculty writes open work first, then resolved flags.
func RenderFaculty(w io.Writer, d FacultyDashboard) error {
	fmt.Fprintf(w, "Assigned Flags (%d open)\n", len(d.Open))
	if len(d.Open) > 0 {
		if err := RenderTable(w, d.Open); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "\nResolved (%d)\n", len(d.Resolved))
	if len(d.Resolved) == 0 {
		return nil
	}
	return RenderTable(w, d.Resolved)
}

func renderHeader(w io.Writer, f models.FlaggedItem) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Flag\t#%d (%s)\n", f.ID, f.Type)
	fmt.Fprintf(tw, "Status\t%s [%s]\n", f.Status.Label(), f.Status.Class())
	fmt.Fprintf(tw, "Priority\t%s\n", f.Priority.Display())
	fmt.Fprintf(tw, "Reason\t%s\n", f.Reason)
	fmt.Fprintf(tw, "Flagged\t%s by %s\n", f.FlaggedAt.Local().Format(timeLayout), orDash(f.FlaggedByName))
	fmt.Fprintf(tw, "Assigned to\t%s\n", orDash(f.AssigneeName()))
	if f.Status.IsResolved() {
		by := ""
		if f.ResolvedByName != nil {
			by = *f.ResolvedByName
		}
		at := ""
		if f.ResolvedAt != nil {
			at = f.ResolvedAt.Local().Format(timeLayout)
		}
		fmt.Fprintf(tw, "Resolved\t%s by %s\n", orDash(at), orDash(by))
		if f.ResolutionNotes != nil {
			p := models.DecodeResolutionPayload(*f.ResolutionNotes)
			fmt.Fprintf(tw, "Feedback\t%s\n", p.Feedback)
			if p.CorrectedResponse != nil {
				fmt.Fprintf(tw, "Correction\t%s\n", *p.CorrectedResponse)
			}
		}
	}
	tw.Flush()
}

func renderMessage(w io.Writer, m models.Message, marker string) {
	fmt.Fprintf(w, "%s [%s] %s: %s\n", marker, m.SentAt.Local().Format(time.Kitchen), orDash(m.Sender), m.Content)
}

// RenderDetail writes a routed flag view.
func RenderDetail(w io.Writer, v detail.View) error {
	renderHeader(w, v.Item())
	fmt.Fprintln(w)
	switch v := v.(type) {
	case detail.MessageView:
		if v.Unavailable || v.Context == nil {
			fmt.Fprintln(w, "Content unavailable: the flagged message no longer exists.")
			return nil
		}
		for _, m := range v.Context.Before {
			renderMessage(w, m, " ")
		}
		renderMessage(w, v.Context.Flagged, ">")
		for _, m := range v.Context.After {
			renderMessage(w, m, " ")
		}
	case detail.QuizView:
		if v.Unavailable {
			fmt.Fprintln(w, "Content unavailable: the flagged quiz no longer exists.")
			return nil
		}
		fmt.Fprintf(w, "Quiz: %s\n", v.Quiz.Title)
		if v.Attempt != nil {
			c, total := detail.Score(v.Questions)
			fmt.Fprintf(w, "Attempt by %s: %d/%d correct\n", orDash(v.Attempt.StudentName), c, total)
		}
		for i, q := range v.Questions {
			mark := " "
			switch {
			case q.Correct:
				mark = "✓"
			case q.Answered:
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %d. %s\n", mark, i+1, q.Question.Prompt)
			fmt.Fprintf(w, "     answer: %s   expected: %s\n", orDash(q.Answer), q.Question.CorrectAnswer)
		}
	default:
		fmt.Fprintf(w, "Flags of type %q cannot be displayed here.\n", v.Item().Type)
	}
	return nil
}

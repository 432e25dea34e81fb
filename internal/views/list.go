// Package views derives the per-role flag lists shown by the dashboards.
package views

import (
	"sort"

	"github.com/patrickwarner/flagdesk/internal/models"
)

// SortNewestFirst orders items by flaggedAt descending, breaking ties by id
// descending. The input slice is left untouched.
func SortNewestFirst(items []models.FlaggedItem) []models.FlaggedItem {
	out := make([]models.FlaggedItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FlaggedAt.Equal(out[j].FlaggedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].FlaggedAt.After(out[j].FlaggedAt)
	})
	return out
}

// Filter keeps the items whose canonical status equals status, newest first.
// An empty status keeps everything.
func Filter(items []models.FlaggedItem, status models.Status) []models.FlaggedItem {
	var out []models.FlaggedItem
	for _, it := range items {
		if status == "" || it.Status == status {
			out = append(out, it)
		}
	}
	return SortNewestFirst(out)
}

// Counts tallies items per canonical status.
type Counts struct {
	Pending  int
	Assigned int
	Resolved int
	Total    int
}

// Count returns the tallies for items.
func Count(items []models.FlaggedItem) Counts {
	var c Counts
	for _, it := range items {
		switch it.Status {
		case models.StatusPending:
			c.Pending++
		case models.StatusAssigned:
			c.Assigned++
		case models.StatusResolved:
			c.Resolved++
		}
		c.Total++
	}
	return c
}

// Of returns the count for a single status.
func (c Counts) Of(s models.Status) int {
	switch s {
	case models.StatusPending:
		return c.Pending
	case models.StatusAssigned:
		return c.Assigned
	case models.StatusResolved:
		return c.Resolved
	}
	return 0
}

// Tab is one status tab of a dashboard.
type Tab struct {
	Status models.Status
	Label  string
	Count  int
	Items  []models.FlaggedItem
}

// AdminDashboard groups every flag into Pending, Assigned and Resolved tabs.
type AdminDashboard struct {
	Tabs   []Tab
	Counts Counts
}

// NewAdminDashboard builds the admin view over the full flag list.
func NewAdminDashboard(items []models.FlaggedItem) AdminDashboard {
	c := Count(items)
	d := AdminDashboard{Counts: c}
	for _, s := range []models.Status{models.StatusPending, models.StatusAssigned, models.StatusResolved} {
		d.Tabs = append(d.Tabs, Tab{Status: s, Label: s.Label(), Count: c.Of(s), Items: Filter(items, s)})
	}
	return d
}

// Tab returns the tab for status, or false when there is none.
func (d AdminDashboard) Tab(s models.Status) (Tab, bool) {
	for _, t := range d.Tabs {
		if t.Status == s {
			return t, true
		}
	}
	return Tab{}, false
}

// FacultyDashboard splits a faculty member's assigned flags into open and
// resolved work.
type FacultyDashboard struct {
	Open     []models.FlaggedItem
	Resolved []models.FlaggedItem
}

// NewFacultyDashboard builds the faculty view over the assigned-to-me list.
func NewFacultyDashboard(items []models.FlaggedItem) FacultyDashboard {
	var open, done []models.FlaggedItem
	for _, it := range items {
		if it.Status.IsResolved() {
			done = append(done, it)
		} else {
			open = append(open, it)
		}
	}
	return FacultyDashboard{Open: SortNewestFirst(open), Resolved: SortNewestFirst(done)}
}

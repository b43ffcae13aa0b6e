// Package navigation derives the sidebar menu from a role. It is pure: no
// state, no I/O.
package navigation

import (
	"strings"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
)

// Icon names the sidebar glyph of an entry.
type Icon string

const (
	IconHome          Icon = "home"
	IconSchool        Icon = "school"
	IconUsers         Icon = "users"
	IconGraduationCap Icon = "graduation-cap"
	IconUserCheck     Icon = "user-check"
	IconClipboardList Icon = "clipboard-list"
	IconLibrary       Icon = "library"
	IconBookOpen      Icon = "book-open"
	IconMessageSquare Icon = "message-square"
	IconBarChart      Icon = "bar-chart-3"
	IconFileText      Icon = "file-text"
	IconSettings      Icon = "settings"
	IconCalendar      Icon = "calendar"
)

// Item is one menu entry.
type Item struct {
	Title    string `json:"title"`
	Path     string `json:"path"`
	Icon     Icon   `json:"icon,omitempty"`
	Active   bool   `json:"active,omitempty"`
	Children []Item `json:"children,omitempty"`
}

var (
	dashboard = Item{Title: "Dashboard", Path: "/dashboard", Icon: IconHome}
	library   = Item{Title: "Library", Path: "/library", Icon: IconLibrary}
	feeds     = Item{Title: "Feeds", Path: "/feeds", Icon: IconMessageSquare}
	learning  = Item{Title: "Learning", Path: "/learning", Icon: IconBookOpen}
	// attendance has children only in the teacher menu.
	attendance = Item{Title: "Attendance", Path: "/attendance", Icon: IconUserCheck}
)

var menus = map[domain.Role][]Item{
	domain.RoleAdmin: {
		dashboard,
		{Title: "Schools", Path: "/schools", Icon: IconSchool},
		{Title: "Users", Path: "/users", Icon: IconUsers, Children: []Item{
			{Title: "All Users", Path: "/users"},
			{Title: "Teachers", Path: "/users/teachers"},
			{Title: "Students", Path: "/users/students"},
			{Title: "Parents", Path: "/users/parents"},
		}},
		{Title: "Grades & Classes", Path: "/grades", Icon: IconGraduationCap},
		attendance,
		{Title: "Assessments", Path: "/assessments", Icon: IconClipboardList},
		library,
		learning,
		feeds,
		{Title: "Reports", Path: "/reports", Icon: IconBarChart},
		{Title: "Settings", Path: "/settings", Icon: IconSettings},
	},
	domain.RoleTeacher: {
		dashboard,
		{Title: "My Classes", Path: "/classes", Icon: IconGraduationCap},
		{Title: "Attendance", Path: "/attendance", Icon: IconUserCheck, Children: []Item{
			{Title: "Take Attendance", Path: "/attendance/take"},
			{Title: "View Records", Path: "/attendance/records"},
		}},
		{Title: "Assessments", Path: "/assessments", Icon: IconClipboardList, Children: []Item{
			{Title: "Grade Assessments", Path: "/assessments/grade"},
			{Title: "View Results", Path: "/assessments/results"},
		}},
		{Title: "Learning", Path: "/learning", Icon: IconBookOpen, Children: []Item{
			{Title: "Create Content", Path: "/learning/create"},
			{Title: "My Content", Path: "/learning/my-content"},
		}},
		library,
		feeds,
		{Title: "Reports", Path: "/reports", Icon: IconBarChart},
	},
	domain.RoleStudent: {
		dashboard,
		{Title: "My Grades", Path: "/grades", Icon: IconClipboardList},
		attendance,
		learning,
		library,
		feeds,
		{Title: "Calendar", Path: "/calendar", Icon: IconCalendar},
	},
	domain.RoleParent: {
		dashboard,
		{Title: "My Children", Path: "/children", Icon: IconUsers},
		{Title: "Grades & Progress", Path: "/grades", Icon: IconClipboardList},
		attendance,
		feeds,
		{Title: "Reports", Path: "/reports", Icon: IconFileText},
	},
}

// Menu returns the ordered menu for role. Roles outside the known set get
// the student menu, the least privileged one. The result is a fresh copy
// the caller may modify.
func Menu(role domain.Role) []Item {
	items, ok := menus[role]
	if !ok {
		items = menus[domain.RoleStudent]
	}
	return clone(items)
}

// MarkActive returns a copy of items with Active set on every entry whose
// path is path or a parent segment of it, and on every entry with an
// active child.
func MarkActive(items []Item, path string) []Item {
	out := clone(items)
	for i := range out {
		childActive := false
		for j := range out[i].Children {
			if IsActive(out[i].Children[j].Path, path) {
				out[i].Children[j].Active = true
				childActive = true
			}
		}
		out[i].Active = childActive || IsActive(out[i].Path, path)
	}
	return out
}

// IsActive reports whether current is href or lies below it.
func IsActive(href, current string) bool {
	return current == href || strings.HasPrefix(current, href+"/")
}

func clone(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		out[i].Children = clone(it.Children)
	}
	return out
}

package output

import (
	"fmt"
	"strings"

	"github.com/marcus/yoga/internal/models"
)

// FormatStatus formats a class status with color
func FormatStatus(s models.ClassStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return fmt.Sprintf("[%s]", s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatSyncState shows how far a row has got towards the remote store
func FormatSyncState(s models.SyncState) string {
	style, ok := syncStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// FormatSlots renders "free/capacity", red when full and amber when nearly so
func FormatSlots(available, capacity int) string {
	text := fmt.Sprintf("%d/%d free", available, capacity)
	switch {
	case available <= 0:
		return errorStyle.Render(text)
	case capacity > 0 && available*5 <= capacity:
		return warningStyle.Render(text)
	default:
		return text
	}
}

// FormatCourseShort formats a course on one line
// e.g. "#3  Wednesday 18:30  Vinyasa  60 minutes  £10.00  cap 12  synced"
func FormatCourseShort(c *models.Course) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("#%d", c.ID)),
		fmt.Sprintf("%s %s", c.DayOfWeek, c.Time),
		c.ClassType,
		subtleStyle.Render(c.FormattedDuration()),
		priceStyle.Render(c.FormattedPrice()),
		fmt.Sprintf("cap %d", c.Capacity),
	}
	if c.Instructor != "" {
		parts = append(parts, c.Instructor)
	}
	parts = append(parts, FormatSyncState(c.SyncState()))
	return strings.Join(parts, "  ")
}

// FormatCourseLong formats a course with its details and classes
func FormatCourseLong(c *models.Course, classes []models.Class) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s, %s %s", c.ID, c.ClassType, c.DayOfWeek, c.Time)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Duration: %s | Price: %s | Capacity: %d\n", c.FormattedDuration(), c.FormattedPrice(), c.Capacity))

	details := []struct{ label, value string }{
		{"Instructor", c.Instructor},
		{"Room", c.Room},
		{"Difficulty", c.Difficulty},
		{"Equipment", c.Equipment},
		{"Age group", c.AgeGroup},
	}
	for _, d := range details {
		if d.value != "" {
			sb.WriteString(fmt.Sprintf("%s: %s\n", d.label, d.value))
		}
	}
	sb.WriteString(fmt.Sprintf("Sync: %s", FormatSyncState(c.SyncState())))
	if c.RemoteKey != "" {
		sb.WriteString(subtleStyle.Render(" " + c.RemoteKey))
	}
	sb.WriteString("\n")

	if c.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Description:"))
		sb.WriteString("\n")
		sb.WriteString(c.Description)
		sb.WriteString("\n")
	}

	if len(classes) > 0 {
		sb.WriteString(SectionHeader("Classes"))
		for i := range classes {
			sb.WriteString("  ")
			sb.WriteString(FormatClassShort(&classes[i], nil))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatClassShort formats a class on one line. course may be nil.
// e.g. "#7  2026-11-04  Ana  8/12 free  [Scheduled]  Vinyasa 18:30"
func FormatClassShort(c *models.Class, course *models.Course) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("#%d", c.ID)),
		c.Date,
		c.Instructor,
		FormatSlots(c.SlotsAvailable, c.ActualCapacity),
		FormatStatus(c.Status),
	}
	if course != nil {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("%s %s", course.ClassType, course.Time)))
	}
	if c.SyncState() != models.SyncSynced {
		parts = append(parts, FormatSyncState(c.SyncState()))
	}
	return strings.Join(parts, "  ")
}

// FormatClassLong formats a class with its course and bookings
func FormatClassLong(c *models.Class, course *models.Course, bookings []models.Booking) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s with %s", c.ID, c.Date, c.Instructor)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Status: %s | Slots: %s\n", FormatStatus(c.Status), FormatSlots(c.SlotsAvailable, c.ActualCapacity)))
	if course != nil {
		sb.WriteString(fmt.Sprintf("Course: #%d %s, %s %s\n", course.ID, course.ClassType, course.DayOfWeek, course.Time))
	}
	sb.WriteString(fmt.Sprintf("Sync: %s", FormatSyncState(c.SyncState())))
	if c.RemoteKey != "" {
		sb.WriteString(subtleStyle.Render(" " + c.RemoteKey))
	}
	sb.WriteString("\n")

	if c.Comments != "" {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Comments:"))
		sb.WriteString("\n")
		sb.WriteString(c.Comments)
		sb.WriteString("\n")
	}

	if bookings != nil {
		sb.WriteString(SectionHeader(fmt.Sprintf("Bookings (%d)", len(bookings))))
		for _, b := range bookings {
			sb.WriteString("  ")
			sb.WriteString(FormatBooking(b))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatBooking formats a booking on one line
func FormatBooking(b models.Booking) string {
	parts := []string{subtleStyle.Render(b.Key), b.UserID, b.ClassKey}
	if !b.BookedAt.IsZero() {
		parts = append(parts, b.BookedAt.Format("2006-01-02 15:04"))
	}
	if b.Status != "" {
		parts = append(parts, fmt.Sprintf("[%s]", b.Status))
	}
	return strings.Join(parts, "  ")
}

// FormatUser formats a user on one line
func FormatUser(u models.User) string {
	name := u.DisplayName
	if name == "" {
		name = "(no name)"
	}
	parts := []string{titleStyle.Render(name), u.Email}
	if u.Phone != "" {
		parts = append(parts, u.Phone)
	}
	parts = append(parts, subtleStyle.Render(u.UID))
	return strings.Join(parts, "  ")
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nCLASSES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

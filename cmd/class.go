package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/dateparse"
	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/live"
	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/output"
	"github.com/marcus/yoga/internal/schedule"
)

var classCmd = &cobra.Command{
	Use:     "class",
	Aliases: []string{"classes"},
	Short:   "Manage dated class occurrences",
	GroupID: "catalog",
}

var classAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule classes for a course",
	Long: `Schedules a class on --date and, with --repeat N, the same weekday for
the following N-1 weeks. Nothing is created if any of those dates already
has a class for the course.

--date accepts YYYY-MM-DD, DD/MM/YYYY, today, tomorrow, +Nd, +Nw, a day
name, "next" (the course's next weekday), or English such as "next friday".`,
	Example: `  yoga class add --course 3 --date next --instructor Ana --repeat 6
  yoga class add --course 3 --date 2026-11-04 --instructor Ben --capacity 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID, _ := cmd.Flags().GetInt64("course")
		dateInput, _ := cmd.Flags().GetString("date")
		instructor, _ := cmd.Flags().GetString("instructor")
		capacity, _ := cmd.Flags().GetInt("capacity")
		repeat, _ := cmd.Flags().GetInt("repeat")
		comments, _ := cmd.Flags().GetString("comments")
		status, _ := cmd.Flags().GetString("status")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		course, err := a.courses.ByID(courseID)
		if err != nil {
			return notFound(false, fmt.Sprintf("course #%d", courseID), err)
		}
		if instructor == "" {
			instructor = course.Instructor
		}

		date, err := resolveClassDate(dateInput, course)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		res, err := a.sched.Create(cmd.Context(), schedule.Request{
			CourseID:       courseID,
			Date:           date,
			Instructor:     instructor,
			CustomCapacity: capacity,
			RepeatWeeks:    repeat,
			Comments:       comments,
			Status:         models.NormalizeStatus(status),
		})
		if err != nil {
			if errors.Is(err, schedule.ErrDuplicateClass) {
				output.Error("%v (nothing was created)", err)
			} else {
				output.Error("%v", err)
			}
			return err
		}

		for _, w := range res.Warnings {
			output.Warning("%s", w)
		}
		output.Success("CREATED %d class(es) for course #%d", len(res.Classes), course.ID)
		for i := range res.Classes {
			fmt.Println(output.FormatClassShort(&res.Classes[i], course))
		}
		if res.RemoteErr != nil {
			warnRemote("classes", res.RemoteErr)
		}
		return nil
	},
}

// resolveClassDate parses the --date flag. "next" means the course's next
// weekday, counting today.
func resolveClassDate(input string, course *models.Course) (string, error) {
	if input == "next" {
		return dateparse.NextOn(course.DayOfWeek, time.Now())
	}
	return dateparse.ParseDate(input)
}

var classListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List classes by date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var classes []models.Class
		if cmd.Flags().Changed("course") {
			courseID, _ := cmd.Flags().GetInt64("course")
			classes, err = first(cmd.Context(), func(deliver func(live.Snapshot[[]models.Class])) *live.Subscription {
				return a.classes.ForCourse(courseID, deliver)
			})
		} else {
			classes, err = first(cmd.Context(), a.classes.All)
		}
		if err != nil {
			output.Error("list classes: %v", err)
			return err
		}
		return printClasses(cmd, a, classes)
	},
}

var classSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find classes by instructor, date or weekday",
	Example: `  yoga class search --instructor ana
  yoga class search --date tomorrow
  yoga class search --day sat --instructor ben`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var f db.SearchFilter
		f.Instructor, _ = cmd.Flags().GetString("instructor")
		f.DayOfWeek, _ = cmd.Flags().GetString("day")
		if d, _ := cmd.Flags().GetString("date"); d != "" {
			date, err := dateparse.ParseDate(d)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			f.Date = date
		}
		if f.DayOfWeek != "" {
			f.DayOfWeek = models.NormalizeDay(f.DayOfWeek)
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		classes, err := first(cmd.Context(), func(deliver func(live.Snapshot[[]models.Class])) *live.Subscription {
			return a.classes.Search(f, deliver)
		})
		if err != nil {
			output.Error("search: %v", err)
			return err
		}
		return printClasses(cmd, a, classes)
	},
}

// printClasses writes classes as JSON or one line each with their course
func printClasses(cmd *cobra.Command, a *app, classes []models.Class) error {
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return output.JSON(classes)
	}
	if len(classes) == 0 {
		fmt.Println("No classes")
		return nil
	}
	courses := map[int64]*models.Course{}
	for i := range classes {
		c := &classes[i]
		course, ok := courses[c.CourseID]
		if !ok {
			course, _ = a.courses.ByID(c.CourseID)
			courses[c.CourseID] = course
		}
		fmt.Println(output.FormatClassShort(c, course))
	}
	return nil
}

var classShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a class and its bookings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		id, err := parseID(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.classes.ByID(id)
		if err != nil {
			return notFound(jsonOutput, fmt.Sprintf("class #%d", id), err)
		}
		course, _ := a.courses.ByID(c.CourseID)

		var bookings []models.Booking
		if c.RemoteKey != "" {
			bookings = a.bookings.ForClass(cmd.Context(), c.RemoteKey)
		}

		if jsonOutput {
			return output.JSON(map[string]interface{}{
				"class":    c,
				"course":   course,
				"bookings": bookings,
			})
		}
		fmt.Print(output.FormatClassLong(c, course, bookings))
		return nil
	},
}

var classUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a class",
	Long: `Edits a class. Unlike add, the date may be moved onto a day that
already has a class. Slots available are clamped to the capacity.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.classes.ByID(id)
		if err != nil {
			return notFound(false, fmt.Sprintf("class #%d", id), err)
		}

		f := cmd.Flags()
		if f.Changed("date") {
			d, _ := f.GetString("date")
			if c.Date, err = dateparse.ParseDate(d); err != nil {
				output.Error("%v", err)
				return err
			}
		}
		if f.Changed("instructor") {
			c.Instructor, _ = f.GetString("instructor")
		}
		if f.Changed("capacity") {
			c.ActualCapacity, _ = f.GetInt("capacity")
		}
		if f.Changed("slots") {
			c.SlotsAvailable, _ = f.GetInt("slots")
		}
		if f.Changed("comments") {
			c.Comments, _ = f.GetString("comments")
		}
		if f.Changed("status") {
			s, _ := f.GetString("status")
			c.Status = models.NormalizeStatus(s)
		}

		res, err := a.sched.Edit(cmd.Context(), c)
		if err != nil {
			output.Error("update class: %v", err)
			return err
		}
		for _, w := range res.Warnings {
			output.Warning("%s", w)
		}
		output.Success("UPDATED class #%d", c.ID)
		if res.RemoteErr != nil {
			warnRemote("class", res.RemoteErr)
		}
		return nil
	},
}

var classDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a class",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := finish(cmd.Context(), a.classes.Delete(cmd.Context(), id), "class deletion"); err != nil {
			return err
		}
		output.Success("DELETED class #%d", id)
		return nil
	},
}

func init() {
	classAddCmd.Flags().Int64("course", 0, "Course id")
	classAddCmd.Flags().String("date", "next", "First class date")
	classAddCmd.Flags().String("instructor", "", "Instructor (default: the course instructor)")
	classAddCmd.Flags().Int("capacity", 0, "Places (default: the course capacity)")
	classAddCmd.Flags().Int("repeat", 1, "Number of weekly classes to create")
	classAddCmd.Flags().String("comments", "", "Comments shown to customers")
	classAddCmd.Flags().String("status", "Scheduled", "Scheduled, Active, Completed or Cancelled")
	classAddCmd.MarkFlagRequired("course")

	classListCmd.Flags().Int64("course", 0, "Only classes of this course")
	classListCmd.Flags().Bool("json", false, "Machine-readable JSON")

	classSearchCmd.Flags().String("instructor", "", "Instructor name contains")
	classSearchCmd.Flags().String("date", "", "Exact date")
	classSearchCmd.Flags().String("day", "", "Course weekday")
	classSearchCmd.Flags().Bool("json", false, "Machine-readable JSON")

	classShowCmd.Flags().Bool("json", false, "Machine-readable JSON")

	classUpdateCmd.Flags().String("date", "", "New date")
	classUpdateCmd.Flags().String("instructor", "", "Instructor")
	classUpdateCmd.Flags().Int("capacity", 0, "Places")
	classUpdateCmd.Flags().Int("slots", 0, "Slots still available")
	classUpdateCmd.Flags().String("comments", "", "Comments")
	classUpdateCmd.Flags().String("status", "", "Scheduled, Active, Completed or Cancelled")

	classCmd.AddCommand(classAddCmd, classListCmd, classShowCmd, classUpdateCmd, classDeleteCmd, classSearchCmd)
	rootCmd.AddCommand(classCmd)
}

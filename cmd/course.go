package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/live"
	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/output"
)

var courseCmd = &cobra.Command{
	Use:     "course",
	Aliases: []string{"courses"},
	Short:   "Manage weekly courses",
	GroupID: "catalog",
}

var courseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a course",
	Example: `  yoga course add --day wed --time 18:30 --capacity 12 --duration 60 --price 10 --type Vinyasa
  yoga course add --day Saturday --time 09:00 --capacity 20 --duration 75 --price 12.5 --type Hatha --room "Studio A"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &models.Course{}
		applyCourseFlags(cmd, c)

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := finish(cmd.Context(), a.courses.Insert(cmd.Context(), c), "course"); err != nil {
			return err
		}
		output.Success("CREATED course #%d", c.ID)
		fmt.Println(output.FormatCourseShort(c))
		return nil
	},
}

var courseListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List courses by weekday and time",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		courses, err := first(cmd.Context(), func(deliver func(live.Snapshot[[]models.Course])) *live.Subscription {
			return a.courses.All(deliver)
		})
		if err != nil {
			output.Error("list courses: %v", err)
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(courses)
		}
		if len(courses) == 0 {
			fmt.Println("No courses")
			return nil
		}
		for i := range courses {
			fmt.Println(output.FormatCourseShort(&courses[i]))
		}
		return nil
	},
}

var courseShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a course and its classes",
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

		c, err := a.courses.ByID(id)
		if err != nil {
			return notFound(jsonOutput, fmt.Sprintf("course #%d", id), err)
		}
		classes, err := first(cmd.Context(), func(deliver func(live.Snapshot[[]models.Class])) *live.Subscription {
			return a.classes.ForCourse(id, deliver)
		})
		if err != nil {
			output.Error("list classes: %v", err)
			return err
		}

		if jsonOutput {
			return output.JSON(map[string]interface{}{
				"course":  c,
				"classes": classes,
			})
		}
		fmt.Print(output.FormatCourseLong(c, classes))
		return nil
	},
}

var courseUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a course",
	Args:  cobra.ExactArgs(1),
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

		c, err := a.courses.ByID(id)
		if err != nil {
			return notFound(false, fmt.Sprintf("course #%d", id), err)
		}
		applyCourseFlags(cmd, c)

		if err := finish(cmd.Context(), a.courses.Update(cmd.Context(), c), "course"); err != nil {
			return err
		}
		output.Success("UPDATED course #%d", c.ID)
		return nil
	},
}

var courseDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a course and all of its classes",
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

		classes, err := a.db.ListClassesForCourse(id)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := finish(cmd.Context(), a.courses.Delete(cmd.Context(), id), "course deletion"); err != nil {
			return err
		}
		output.Success("DELETED course #%d and %d classes", id, len(classes))
		return nil
	},
}

// applyCourseFlags copies the flags the user set onto c
func applyCourseFlags(cmd *cobra.Command, c *models.Course) {
	f := cmd.Flags()
	if f.Changed("day") {
		day, _ := f.GetString("day")
		c.DayOfWeek = models.NormalizeDay(day)
	}
	strFields := map[string]*string{
		"time":        &c.Time,
		"type":        &c.ClassType,
		"description": &c.Description,
		"instructor":  &c.Instructor,
		"room":        &c.Room,
		"difficulty":  &c.Difficulty,
		"equipment":   &c.Equipment,
		"age-group":   &c.AgeGroup,
	}
	for name, field := range strFields {
		if f.Changed(name) {
			*field, _ = f.GetString(name)
		}
	}
	if f.Changed("capacity") {
		c.Capacity, _ = f.GetInt("capacity")
	}
	if f.Changed("duration") {
		c.Duration, _ = f.GetInt("duration")
	}
	if f.Changed("price") {
		c.Price, _ = f.GetFloat64("price")
	}
}

func addCourseFlags(cmd *cobra.Command) {
	cmd.Flags().String("day", "", "Day of week (monday, tue, ...)")
	cmd.Flags().String("time", "", "Start time, HH:MM")
	cmd.Flags().Int("capacity", 0, "Default places per class")
	cmd.Flags().Int("duration", 0, "Length in minutes")
	cmd.Flags().Float64("price", 0, "Price per class")
	cmd.Flags().String("type", "", "Class type, e.g. Vinyasa")
	cmd.Flags().String("description", "", "Description")
	cmd.Flags().String("instructor", "", "Usual instructor")
	cmd.Flags().String("room", "", "Room")
	cmd.Flags().String("difficulty", "", "Difficulty level")
	cmd.Flags().String("equipment", "", "Equipment needed")
	cmd.Flags().String("age-group", "", "Age group")
}

func init() {
	addCourseFlags(courseAddCmd)
	for _, name := range []string{"day", "time", "capacity", "duration", "price", "type"} {
		courseAddCmd.MarkFlagRequired(name)
	}
	addCourseFlags(courseUpdateCmd)

	courseListCmd.Flags().Bool("json", false, "Machine-readable JSON")
	courseShowCmd.Flags().Bool("json", false, "Machine-readable JSON")

	courseCmd.AddCommand(courseAddCmd, courseListCmd, courseShowCmd, courseUpdateCmd, courseDeleteCmd)
	rootCmd.AddCommand(courseCmd)
}

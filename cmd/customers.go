package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/output"
)

var bookingCmd = &cobra.Command{
	Use:     "booking",
	Aliases: []string{"bookings"},
	Short:   "View customer bookings (read from the remote store)",
	GroupID: "customers",
}

var bookingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List bookings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var bookings []models.Booking
		if cmd.Flags().Changed("class") {
			id, _ := cmd.Flags().GetInt64("class")
			c, err := a.classes.ByID(id)
			if err != nil {
				return notFound(false, fmt.Sprintf("class #%d", id), err)
			}
			if c.RemoteKey == "" {
				output.Warning("class #%d has not been synced; it cannot have bookings yet", id)
				bookings = []models.Booking{}
			} else {
				bookings = a.bookings.ForClass(cmd.Context(), c.RemoteKey)
			}
		} else {
			bookings = a.bookings.All(cmd.Context())
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(bookings)
		}
		if len(bookings) == 0 {
			fmt.Println("No bookings")
			return nil
		}
		for _, b := range bookings {
			fmt.Println(output.FormatBooking(b))
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "View customer accounts (read from the remote store)",
	GroupID: "customers",
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		users := a.users.All(cmd.Context())
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(users)
		}
		if len(users) == 0 {
			fmt.Println("No users")
			return nil
		}
		for _, u := range users {
			fmt.Println(output.FormatUser(u))
		}
		return nil
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show one user and their bookings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.users.ByUID(cmd.Context(), args[0])
		if err != nil {
			return notFound(jsonOutput, fmt.Sprintf("user %s", args[0]), err)
		}
		var bookings []models.Booking
		for _, b := range a.bookings.All(cmd.Context()) {
			if b.UserID == u.UID {
				bookings = append(bookings, b)
			}
		}

		if jsonOutput {
			return output.JSON(map[string]interface{}{
				"user":     u,
				"bookings": bookings,
			})
		}
		fmt.Println(output.FormatUser(*u))
		fmt.Print(output.SectionHeader(fmt.Sprintf("Bookings (%d)", len(bookings))))
		for _, b := range bookings {
			fmt.Println("  " + output.FormatBooking(b))
		}
		return nil
	},
}

func init() {
	bookingListCmd.Flags().Int64("class", 0, "Only bookings for this class id")
	bookingListCmd.Flags().Bool("json", false, "Machine-readable JSON")
	bookingCmd.AddCommand(bookingListCmd)

	userListCmd.Flags().Bool("json", false, "Machine-readable JSON")
	userShowCmd.Flags().Bool("json", false, "Machine-readable JSON")
	userCmd.AddCommand(userListCmd, userShowCmd)

	rootCmd.AddCommand(bookingCmd, userCmd)
}

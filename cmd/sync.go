package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/output"
	"github.com/marcus/yoga/internal/repository"
	"github.com/marcus/yoga/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Move data between the local database and the remote store",
	GroupID: "sync",
}

var syncImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import courses and classes from the remote store",
	Long: `Runs the one-time import if it has not completed yet. With --force the
import runs again; existing rows are matched by remote key and updated,
never duplicated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var res sync.ImportResult
		if force, _ := cmd.Flags().GetBool("force"); force {
			res, err = a.sync.Reimport(cmd.Context())
		} else {
			res, err = a.sync.InitialImport(cmd.Context())
		}
		if err != nil {
			output.Error("import: %v", err)
			return err
		}
		a.hub.Notify(repository.TopicCourses, repository.TopicClasses)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(res)
		}
		if res.Skipped {
			fmt.Println("Already imported (use --force to import again)")
			return nil
		}
		output.Success("IMPORTED %d courses, %d classes", res.CoursesImported, res.ClassesImported)
		if res.ClassesExisting > 0 {
			fmt.Printf("%d classes already present\n", res.ClassesExisting)
		}
		if res.ClassesDropped > 0 {
			output.Warning("%d classes dropped (unknown course or invalid record): %v", res.ClassesDropped, res.DroppedKeys)
		}
		return nil
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish local changes that have not reached the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sync.PushPending(cmd.Context())
		if errors.Is(err, sync.ErrSweepRunning) {
			output.Error("%v", err)
			return err
		}
		if res.Courses+res.Classes > 0 {
			output.Success("PUSHED %d courses, %d classes", res.Courses, res.Classes)
		} else if res.Failed == 0 {
			fmt.Println("Nothing to push")
		}
		if err != nil {
			output.Error("%d failed: %v", res.Failed, err)
			return err
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show import state, pending changes and remote reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout())
		defer cancel()
		st, err := a.sync.Status(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			remoteErr := ""
			if st.RemoteErr != nil {
				remoteErr = st.RemoteErr.Error()
			}
			return output.JSON(map[string]interface{}{
				"backend":               a.cfg.Remote.Backend,
				"url":                   a.cfg.Remote.URL,
				"online":                st.Online,
				"remote_error":          remoteErr,
				"initial_sync_complete": st.InitialSyncComplete,
				"local":                 st.Local,
			})
		}

		fmt.Printf("Remote: %s %s ", a.cfg.Remote.Backend, a.cfg.Remote.URL)
		if st.Online {
			fmt.Println("online")
		} else {
			fmt.Printf("offline (%v)\n", st.RemoteErr)
		}
		fmt.Printf("Initial import: %v", st.InitialSyncComplete)
		if st.Local.LastImportAt != nil {
			fmt.Printf(" (last %s)", output.FormatTimeAgo(*st.Local.LastImportAt))
		}
		fmt.Println()
		courses, _ := a.db.CountCourses()
		classes, _ := a.db.CountClasses()
		fmt.Printf("Courses: %d (%d pending, %d without remote key)\n", courses, st.Local.PendingCourses, st.Local.UnkeyedCourses)
		fmt.Printf("Classes: %d (%d pending, %d without remote key)\n", classes, st.Local.PendingClasses, st.Local.UnkeyedClasses)
		if st.Local.PendingCourses+st.Local.PendingClasses > 0 {
			output.Warning("run 'yoga sync push' to publish pending changes")
		}
		return nil
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Wait for the remote store to become reachable, then import",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		interval := a.cfg.WatchInterval()
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		fmt.Printf("Waiting for %s (checking every %s)...\n", a.cfg.Remote.URL, interval)

		res, err := a.sync.WatchConnectivity(cmd.Context(), interval)
		if errors.Is(err, context.Canceled) {
			fmt.Println("Stopped")
			return nil
		}
		if err != nil {
			output.Error("import: %v", err)
			return err
		}
		a.hub.Notify(repository.TopicCourses, repository.TopicClasses)
		if res.Skipped {
			fmt.Println("Remote reachable; initial import already complete")
			return nil
		}
		output.Success("IMPORTED %d courses, %d classes", res.CoursesImported, res.ClassesImported)
		return nil
	},
}

func init() {
	syncImportCmd.Flags().Bool("force", false, "Import even if the initial import already completed")
	syncImportCmd.Flags().Bool("json", false, "Machine-readable JSON")
	syncStatusCmd.Flags().Bool("json", false, "Machine-readable JSON")
	syncWatchCmd.Flags().Duration("interval", 0, "Time between connectivity checks")

	syncCmd.AddCommand(syncImportCmd, syncPushCmd, syncStatusCmd, syncWatchCmd)
	rootCmd.AddCommand(syncCmd)
}

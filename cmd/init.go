package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/config"
	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a studio directory",
	Long: `Creates the local .yoga directory and SQLite database, then imports the
courses and classes already in the remote store.

Remote settings given as flags are saved to the user config file.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := saveRemoteFlags(cmd); err != nil {
			output.Error("save config: %v", err)
			return err
		}

		baseDir := getBaseDir()
		if _, err := os.Stat(db.Path(baseDir)); err == nil {
			output.Warning(".yoga/ already exists")
		} else {
			database, err := db.Initialize(baseDir)
			if err != nil {
				output.Error("failed to initialize database: %v", err)
				return err
			}
			database.Close()
			fmt.Printf("INITIALIZED %s\n", filepath.Join(baseDir, ".yoga")+string(filepath.Separator))
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		done, _ := a.prefs.InitialSyncComplete()
		courses, _ := a.db.CountCourses()
		classes, _ := a.db.CountClasses()
		switch {
		case a.cfg.Remote.Backend == config.BackendMemory:
			fmt.Println("Remote: in-memory (local only)")
		case done:
			fmt.Printf("Remote: %s %s\n", a.cfg.Remote.Backend, a.cfg.Remote.URL)
		default:
			output.Warning("remote store not reachable; import will run on a later command or 'yoga sync import'")
		}
		fmt.Printf("%d courses, %d classes\n", courses, classes)
		return nil
	},
}

// saveRemoteFlags writes any remote flags given to init into config.json
func saveRemoteFlags(cmd *cobra.Command) error {
	flags := map[string]*string{}
	cfg, err := config.LoadFile()
	if err != nil {
		return err
	}
	flags["backend"] = &cfg.Remote.Backend
	flags["url"] = &cfg.Remote.URL
	flags["token"] = &cfg.Remote.AuthToken
	flags["credentials"] = &cfg.Remote.CredentialsFile

	changed := false
	for name, field := range flags {
		if cmd.Flags().Changed(name) {
			*field, _ = cmd.Flags().GetString(name)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	path, _ := config.Path()
	output.Success("Saved remote settings to %s", path)
	return nil
}

func init() {
	initCmd.Flags().String("backend", "", "Remote backend: rest, firebase or memory")
	initCmd.Flags().String("url", "", "Remote URL (REST base URL or Firebase database URL)")
	initCmd.Flags().String("token", "", "Auth token for the REST backend")
	initCmd.Flags().String("credentials", "", "Service account JSON for the Firebase backend")
	rootCmd.AddCommand(initCmd)
}

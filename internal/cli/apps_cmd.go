package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mmcdole/depotdump/internal/dumpfile"
	"github.com/mmcdole/depotdump/internal/editor"
	"github.com/mmcdole/depotdump/internal/search"
)

func newAppsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage the list of apps to dump",
	}
	cmd.AddCommand(newAppsEditCmd(app))
	cmd.AddCommand(newAppsListCmd(app))
	cmd.AddCommand(newAppsSearchCmd(app))
	return cmd
}

func newAppsEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Add, remove and exclude apps interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ed := editor.NewAppEditor(app.cfg, cmd.InOrStdin(), cmd.OutOrStdout(), app.logger)
			changed, err := ed.Run()
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
				return nil
			}
			if err := app.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %d apps (%d excluded)\n", len(app.cfg.Apps.IDs), len(app.cfg.Apps.Excluded))
			return nil
		},
	}
}

// knownNames reads app names from the last run's apps file. A missing or
// unreadable file yields an empty map.
func (app *App) knownNames() map[uint32]string {
	names := make(map[uint32]string)
	entries, err := dumpfile.ReadApps(filepath.Join(app.cfg.Output.DumpDirectory, dumpfile.AppsFileName))
	if err != nil {
		app.logger.Warn("failed to read apps file", "error", err)
		return names
	}
	for _, e := range entries {
		names[e.AppID] = e.Name
	}
	return names
}

func newAppsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured apps with their index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listApps(cmd.OutOrStdout(), app)
		},
	}
}

func listApps(w io.Writer, app *App) error {
	ids := app.cfg.Apps.IDs.Sorted()
	if len(ids) == 0 {
		_, err := fmt.Fprintln(w, "No apps configured.")
		return err
	}

	names := app.knownNames()
	for i, id := range ids {
		status := "Included"
		if app.cfg.IsExcluded(id) {
			status = "Excluded"
		}
		line := fmt.Sprintf("%3d. %-10d %-8s", i+1, id, status)
		if name := names[id]; name != "" {
			line += "  " + name
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func newAppsSearchCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find apps by name in the apps file of previous runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(app.cfg.Output.DumpDirectory, dumpfile.AppsFileName)
			entries, err := dumpfile.ReadApps(path)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no app names known yet (%s is empty; run a dump first)", path)
			}

			results := search.NewService(entries, app.logger).Find(args[0], limit)
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No apps match %q.\n", args[0])
				return nil
			}
			for _, r := range results {
				mark := " "
				if app.cfg.Apps.IDs.Has(r.AppID) {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-10d %s\n", mark, r.AppID, r.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	return cmd
}

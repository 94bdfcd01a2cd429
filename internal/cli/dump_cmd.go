package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mmcdole/depotdump/internal/domain"
	"github.com/mmcdole/depotdump/internal/dumper"
	"github.com/mmcdole/depotdump/internal/report"
	"github.com/mmcdole/depotdump/internal/store"
)

// ErrRunFailed is returned when a dump finished but recorded failures
var ErrRunFailed = errors.New("dump finished with failures")

func (app *App) openHistory() (*store.HistoryStore, error) {
	history, err := store.NewHistoryStore(app.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return history, nil
}

func newDumpCmd(app *App) *cobra.Command {
	var backend, format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump keys and manifests for every configured app that is not excluded",
		Long: `Dump keys and manifests for every configured app that is not excluded.

The Steam client is not part of this module. A backend package must be linked
into the binary and register itself with steam.DefaultRegistry.Register from
its init function; --backend picks one by name when several are linked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if len(app.cfg.ActiveApps()) == 0 {
				return fmt.Errorf("no apps to dump (add some with 'depotdump apps edit')")
			}

			client, err := app.Registry.NewClient(backend, app.cfg, app.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			history, err := app.openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			op, err := dumper.New(app.cfg, client, history, app.logger).Run(ctx)
			if op == nil {
				return err
			}
			out := cmd.OutOrStdout()
			if werr := report.Write(out, op, f, report.StylesFor(out)); werr != nil {
				return werr
			}
			if err != nil {
				return err
			}
			if !op.Success() {
				return ErrRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Steam client backend (defaults to the only registered one)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "report format: "+report.FormatNames())
	return cmd
}

func newReportCmd(app *App) *cobra.Command {
	var id, format string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the result tree of a past run (latest by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			history, err := app.openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			var op *domain.Operation
			if id == "" {
				op, err = history.LatestOperation()
			} else {
				op, err = history.GetOperation(id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return report.Write(out, op, f, report.StylesFor(out))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "operation ID")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "report format: "+report.FormatNames())
	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := app.openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			ops, err := history.ListOperations(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return report.WriteHistory(out, ops, report.StylesFor(out))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of runs")
	return cmd
}

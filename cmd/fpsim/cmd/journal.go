package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/fpsim/journal"
	bboltjournal "github.com/jmcleod/fpsim/journal/bbolt"
)

const journalFile = "journal.db"

var (
	journalDataDir string
	journalSession string
	journalAfter   uint64
	journalJSON    bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the session event journal",
	Long:  `Commands for reading the bbolt event journal written by the server.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled sessions, or the events of one session",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(journalDataDir, journalFile)
		store, err := bboltjournal.NewStoreFromFile(path, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if journalSession == "" {
			ids, err := store.Sessions()
			if err != nil {
				return err
			}
			if journalJSON {
				return writeJSONOutput(out, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		}

		events, err := store.List(journalSession, journalAfter)
		if err != nil {
			return err
		}
		if journalJSON {
			return writeJSONOutput(out, events)
		}
		for _, ev := range events {
			fmt.Fprintln(out, formatEvent(ev))
		}
		return nil
	},
}

func writeJSONOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(ev journal.Event) string {
	line := fmt.Sprintf("%6d  %s  %-30s", ev.Seq, ev.CreatedAt.Format(time.RFC3339Nano), ev.Kind)
	switch {
	case ev.Code != "":
		line += " code=" + ev.Code
	case ev.Percent != 0:
		line += fmt.Sprintf(" percent=%d", ev.Percent)
	case ev.EnrollmentID != 0:
		line += fmt.Sprintf(" enrollment=%d", ev.EnrollmentID)
	case len(ev.EnrollmentIDs) > 0:
		line += fmt.Sprintf(" enrollments=%v", ev.EnrollmentIDs)
	case ev.RemainingMillis != 0:
		line += fmt.Sprintf(" remaining=%s", time.Duration(ev.RemainingMillis)*time.Millisecond)
	case ev.Value != 0:
		line += fmt.Sprintf(" value=%d", ev.Value)
	}
	if ev.OperationID != "" {
		line += " op=" + ev.OperationID
	}
	return line
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalListCmd.Flags().StringVar(&journalDataDir, "data-dir", "./data", "Directory holding journal.db")
	journalListCmd.Flags().StringVarP(&journalSession, "session", "s", "", "Session id to list events for")
	journalListCmd.Flags().Uint64Var(&journalAfter, "after", 0, "Only list events with a higher sequence number")
	journalListCmd.Flags().BoolVar(&journalJSON, "json", false, "Output JSON")
}

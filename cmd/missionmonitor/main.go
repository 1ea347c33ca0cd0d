// Command missionmonitor is a read-only operator TUI that watches a
// running missionmanager's debug websocket feed (spec §11).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "missionmonitor",
	Short: "Watch a mission manager's live transfer status",
	Long: `missionmonitor connects to a missionmanager's debug websocket feed
and renders the mission transfer state machine, list counts, and
current/reached sequence as they change.

This tool is strictly read-only: it can observe the protocol state
machine but never drives it.`,
	RunE: runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", "ws://localhost:8765/status", "Mission manager debug websocket URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

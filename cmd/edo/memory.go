package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"edo/pkg/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect what the mascot remembers",
}

var memoryDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write remembered conversation and profile as JSON to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := dbPath()
		if err != nil {
			return err
		}
		svc, cfgStore, err := openConfig()
		if err != nil {
			return err
		}
		defer func() { _ = cfgStore.Close() }()

		store, err := memory.Open(resolveMemoryPath(svc.Snapshot(), path))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		snap, err := store.Snapshot(svc.Snapshot().Memory.MaxHistory)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return errors.Wrap(err, "encode memory dump")
		}
		return nil
	},
}

func init() {
	memoryCmd.AddCommand(memoryDumpCmd)
	rootCmd.AddCommand(memoryCmd)
}

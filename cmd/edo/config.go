package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"edo/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit stored settings",
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored settings as YAML to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := openConfig()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		out, err := yaml.Marshal(svc.Snapshot())
		if err != nil {
			return errors.Wrap(err, "encode settings")
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a YAML settings file and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "read settings file")
		}
		snap := config.Default()
		if err := yaml.Unmarshal(raw, &snap); err != nil {
			return errors.Wrap(err, "parse settings file")
		}
		doc, err := json.Marshal(snap)
		if err != nil {
			return errors.Wrap(err, "encode settings")
		}

		svc, store, err := openConfig()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if _, err := svc.Apply(doc); err != nil {
			return err
		}
		fmt.Println("settings saved")
		return nil
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Write the settings form descriptors as JSON to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(config.Schema()), "encode schema")
	},
}

func openConfig() (*config.Service, *config.Store, error) {
	path, err := dbPath()
	if err != nil {
		return nil, nil, err
	}
	store, err := config.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	svc, err := config.NewService(store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

func init() {
	configCmd.AddCommand(configExportCmd, configImportCmd, configSchemaCmd)
	rootCmd.AddCommand(configCmd)
}

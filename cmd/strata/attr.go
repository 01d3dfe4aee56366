package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/strata/pkg/attributes"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Attribute commands
var attrCmd = &cobra.Command{
	Use:   "attr",
	Short: "Inspect and edit node attributes",
	Long: `Inspect the merged attribute tree and edit the persisted override tier.

Overrides written here win over every role and environment document. Node
scope is private to this host; cluster scope holds values such as saved
radosgw secrets that every node of the cluster may reuse.`,
}

var attrGetCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Print the merged value at a dotted path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		roles, _ := cmd.Flags().GetStringArray("role")
		environment, _ := cmd.Flags().GetString("environment")

		store, db, err := openState(stateDir)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.Load(); err != nil {
			return err
		}
		src := config.Sources{Roles: roles, Environment: environment, Facts: config.DetectFacts()}
		if err := config.Load(store, src); err != nil {
			return err
		}

		value, ok := store.Get(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", attributes.ErrNotFound, args[0])
		}
		return writeYAML(cmd.OutOrStdout(), value)
	},
}

var attrSetCmd = &cobra.Command{
	Use:   "set PATH VALUE",
	Short: "Persist an override",
	Long: `Persist an override at a dotted path. VALUE is parsed as YAML, so
"true", "42" and "[a, b]" are stored as a boolean, a number and a list.

Examples:
  strata attr set ceph.osd.device_status.sdb deployed
  strata attr set ceph.mgr.enable true
  strata attr set ceph.secrets.ceph.radosgw.us-east-1 AQ... --scope cluster`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		scopeName, _ := cmd.Flags().GetString("scope")

		scope, err := attributes.ParseScope(scopeName)
		if err != nil {
			return err
		}
		value, err := parseValue(args[1])
		if err != nil {
			return err
		}

		store, db, err := openState(stateDir)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.Load(); err != nil {
			return err
		}
		if err := store.SetOverrideScoped(args[0], value, scope); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s set in %s scope\n", args[0], scope)
		return nil
	},
}

var attrDeleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Remove a persisted override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		scopeName, _ := cmd.Flags().GetString("scope")

		scope, err := attributes.ParseScope(scopeName)
		if err != nil {
			return err
		}

		store, db, err := openState(stateDir)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.Load(); err != nil {
			return err
		}
		if err := store.DeleteOverride(args[0], scope); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s removed from %s scope\n", args[0], scope)
		return nil
	},
}

var attrListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		scopeName, _ := cmd.Flags().GetString("scope")

		scope, err := attributes.ParseScope(scopeName)
		if err != nil {
			return err
		}

		_, db, err := openState(stateDir)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.List(scope)
		if err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), entries)
	},
}

func init() {
	attrCmd.AddCommand(attrGetCmd)
	attrCmd.AddCommand(attrSetCmd)
	attrCmd.AddCommand(attrDeleteCmd)
	attrCmd.AddCommand(attrListCmd)

	attrCmd.PersistentFlags().String("state-dir", defaultStateDir, "Directory of the persisted attribute database")

	attrGetCmd.Flags().StringArray("role", nil, "Role attribute document (repeatable)")
	attrGetCmd.Flags().String("environment", "", "Environment attribute document")

	for _, c := range []*cobra.Command{attrSetCmd, attrDeleteCmd, attrListCmd} {
		c.Flags().String("scope", string(attributes.ScopeNode), "Override scope (node or cluster)")
	}
}

// parseValue reads a command-line value as a YAML scalar or collection
func parseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to parse value: %w", err)
	}
	if v == nil {
		return s, nil
	}
	return v, nil
}

func writeYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// printEntries prints one "path = json" line per entry
func printEntries(w io.Writer, entries []storage.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No overrides")
		return nil
	}
	for _, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", e.Path, err)
		}
		fmt.Fprintf(w, "%s = %s\n", e.Path, value)
	}
	return nil
}

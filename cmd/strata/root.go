/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tomoncle/strata"
	"github.com/tomoncle/strata/repository"
	"github.com/tomoncle/strata/types"
	"github.com/tomoncle/strata/utils"
)

type rootOptions struct {
	configPath string
	logLevel   string
	json       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "strata",
		Short:         "Inspect a strata persistence store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			utils.ConfigureLogLevel(opts.logLevel)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		utils.EnvDefaultString("STRATA_CONFIG", "strata.yaml"), "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level",
		utils.EnvDefaultString("LOG_LEVEL", "warn"), "Log level")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Output in JSON format")

	cmd.AddCommand(newHealthCmd(opts), newStatsCmd(opts), newAuditCmd(opts))
	return cmd
}

// openStore loads the configuration and opens a store without creating
// any tables.
func (o *rootOptions) openStore(ctx context.Context) (*strata.Store, error) {
	cfg, err := strata.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Database.CreateTables = false
	cfg.Cache = nil
	return strata.Open(ctx, cfg, nil)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			status := store.Health(cmd.Context())
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			state := "healthy"
			if !status.Healthy {
				state = "unhealthy: " + status.LastError
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s %s, %d open / %d idle)\n",
				state, status.Dialect, status.ResponseTime, status.OpenConns, status.IdleConns)
			return err
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show connection pool statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			stats := store.Stats()
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "max open\t%d\n", stats.MaxOpenConns)
			fmt.Fprintf(tw, "open\t%d\n", stats.OpenConns)
			fmt.Fprintf(tw, "in use\t%d\n", stats.InUse)
			fmt.Fprintf(tw, "idle\t%d\n", stats.Idle)
			fmt.Fprintf(tw, "wait count\t%d\n", stats.WaitCount)
			fmt.Fprintf(tw, "wait duration\t%s\n", stats.WaitDuration)
			return tw.Flush()
		},
	}
}

type auditListOptions struct {
	table  string
	action string
	entity string
	page   int
	limit  int
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit_log table",
	}
	list := &auditListOptions{}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		Long: `List audit records written by the table audit sink.

Examples:
  strata audit list --table=tasks --action=UPDATE
  strata audit list --entity=3f1c... --json
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuditList(cmd, opts, list)
		},
	}
	listCmd.Flags().StringVar(&list.table, "table", "", "Only records of this table")
	listCmd.Flags().StringVar(&list.action, "action", "", "Only CREATE, UPDATE or DELETE records")
	listCmd.Flags().StringVar(&list.entity, "entity", "", "Only records of this entity id")
	listCmd.Flags().IntVar(&list.page, "page", types.DefaultPage, "Page number")
	listCmd.Flags().IntVar(&list.limit, "limit", 20, "Records per page")
	cmd.AddCommand(listCmd)
	return cmd
}

func (o *auditListOptions) filter() *types.QueryFilter {
	var filters []*types.QueryFilter
	if o.table != "" {
		filters = append(filters, types.Eq("table_name", o.table))
	}
	if o.action != "" {
		filters = append(filters, types.Eq("action", o.action))
	}
	if o.entity != "" {
		filters = append(filters, types.Eq("entity_id", o.entity))
	}
	return types.And(filters...)
}

func runAuditList(cmd *cobra.Command, opts *rootOptions, list *auditListOptions) error {
	ctx := cmd.Context()
	store, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := strata.NewRepository[repository.AuditRecord](store, repository.Options{})
	if err != nil {
		return err
	}
	page, err := records.FindMany(ctx, types.NewFindOptions(list.page, list.limit).
		WithWhere(list.filter()).
		WithSort("created_at", types.SortDesc))
	if err != nil {
		return err
	}
	if opts.json {
		return writeJSON(cmd.OutOrStdout(), page)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tTABLE\tENTITY\tUSER")
	for _, r := range page.Data {
		entity := r.EntityID
		if len(r.EntityIDs) > 0 {
			entity = fmt.Sprintf("%d rows", r.Count)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Action, r.Table, entity, r.UserID)
	}
	fmt.Fprintf(tw, "\npage %d/%d, %d records\n", page.Pagination.Page, page.Pagination.TotalPages, page.Pagination.Total)
	return tw.Flush()
}

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/koustreak/sqlscope/internal/fixture"
	"github.com/spf13/cobra"
)

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := openService(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.ListTables(ctx)
			if err != nil {
				return err
			}
			renderTables(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Describe the columns and foreign keys of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := openService(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.TableSchema(ctx, args[0])
			if err != nil {
				return err
			}
			renderSchema(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := openService(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.ExecuteQuery(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Write != nil {
				fmt.Fprintf(out, "%d rows affected (%.3fs)\n", res.Write.RowsAffected, res.Write.ExecutionTimeSeconds)
				return nil
			}
			renderRows(out, res.Read.Columns, res.Read.Results)
			fmt.Fprintf(out, "%d rows (%.3fs)\n", res.Read.RowCount, res.Read.ExecutionTimeSeconds)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <sql> <filename>",
		Short: "Export the result of a query to a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := openService(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.ExportToCSV(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %d rows, %d columns to %s\n", res.RowCount, res.ColumnCount, res.Filename)
			if res.ObjectKey != "" {
				fmt.Fprintf(out, "uploaded as %s\n", res.ObjectKey)
			}
			if res.ObjectURL != "" {
				fmt.Fprintln(out, res.ObjectURL)
			}
			return nil
		},
	}
	cmd.Flags().String("export-dir", "", "directory relative export filenames resolve against")
	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <table>",
		Short: "Print statistics for every column of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := openService(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}
			offset, err := cmd.Flags().GetInt("offset")
			if err != nil {
				return fmt.Errorf("failed to get offset flag: %w", err)
			}

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("limit") || cmd.Flags().Changed("offset") {
				res, err := svc.TableData(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				renderRows(out, res.Columns, res.SampleData)
				renderColumnStats(out, res.Columns, res.Statistics)
				next := "none"
				if res.NextOffset != nil {
					next = strconv.Itoa(*res.NextOffset)
				}
				fmt.Fprintf(out, "rows %d-%d of %d, next offset %s\n", res.Offset+1, res.Offset+res.SampleSize, res.TotalRows, next)
				return nil
			}

			res, err := svc.TableStats(ctx, args[0])
			if err != nil {
				return err
			}
			renderColumnStats(out, res.Columns, res.ColumnStatistics)
			fmt.Fprintf(out, "%s: %d rows", res.TableName, res.TotalRows)
			if res.Sampled {
				fmt.Fprintf(out, " (statistics over the first %d)", res.SampledRows)
			}
			if res.IndexCount != nil {
				fmt.Fprintf(out, ", %d indexes", *res.IndexCount)
			}
			if res.TableSizeBytes != nil {
				fmt.Fprintf(out, ", %d bytes", *res.TableSizeBytes)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "show one page of rows with statistics over that page")
	cmd.Flags().Int("offset", 0, "offset of the page")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <path>",
		Short: "Create the sample e-commerce database at path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fixture.Ecommerce(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s with tables %v\n", args[0], fixture.EcommerceTables)
			return nil
		},
	}
}

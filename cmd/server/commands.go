package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/tasksync/internal/application/service"
	"github.com/garyjia/tasksync/internal/container"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/interfaces/dto"
)

func drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay the offline queue against the remote store once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, logger, err := bootstrap(ctx, container.Options{SkipWorkers: true})
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer c.Close()

			report, err := c.Services().Tasks.Drain(ctx)
			if err != nil {
				return fmt.Errorf("drain failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d confirmed=%d failed=%d blocked=%d remaining=%d\n",
				report.Attempted, report.Confirmed, report.Failed, report.Blocked, report.Remaining)
			return nil
		},
	}
}

func exportHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "export-history [file.xlsx]",
		Short: "Write the family history to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, logger, err := bootstrap(ctx, container.Options{SkipWorkers: true})
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer c.Close()

			entries, err := c.Services().Tasks.History(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			if err := c.Exporter().SaveHistoryXLSX(args[0], entries); err != nil {
				return err
			}
			logger.Info("History exported", zap.String("file", args[0]), zap.Int("entries", len(entries)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "newest entries to export (0 for all)")
	return cmd
}

func importCmd() *cobra.Command {
	var memberID string

	cmd := &cobra.Command{
		Use:   "import [tasks.yaml]",
		Short: "Create tasks from a YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var inputs []dto.TaskInput
			if err := yaml.Unmarshal(raw, &inputs); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			c, logger, err := bootstrap(ctx, container.Options{SkipWorkers: true})
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer c.Close()

			actor, err := importActor(c.Services().Roster, memberID)
			if err != nil {
				return err
			}

			created := 0
			for i := range inputs {
				task, err := inputs[i].ToTask(actor, c.IDs(), c.Location())
				if err != nil {
					return fmt.Errorf("task %d (%q): %w", i+1, inputs[i].Title, err)
				}
				if _, err := c.Services().Tasks.Save(ctx, actor, task); err != nil {
					return fmt.Errorf("task %d (%q): %w", i+1, inputs[i].Title, err)
				}
				created++
			}

			logger.Info("Tasks imported", zap.String("file", args[0]), zap.String("member_id", actor.ID), zap.Int("count", created))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d tasks as %s\n", created, actor.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&memberID, "as", "", "member to create the tasks as (default: first admin)")
	return cmd
}

// importActor resolves --as, falling back to the first admin on the roster
func importActor(roster *service.Roster, memberID string) (*entity.Member, error) {
	if memberID != "" {
		return roster.Lookup(memberID)
	}
	for _, m := range roster.Members() {
		if m.IsAdmin() {
			return roster.Lookup(m.ID)
		}
	}
	return nil, fmt.Errorf("no admin on the roster, pass --as")
}

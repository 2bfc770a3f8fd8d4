package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"dae2blend/internal/models"
	"dae2blend/internal/repository"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		status string
	)
	cmd := &cobra.Command{
		Use:   "history [conversion-id]",
		Short: "List recent conversions from the ledger, or show one of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch status {
			case "", models.StatusSucceeded, models.StatusFailed:
			default:
				return errors.Errorf("unknown status %q, want %s or %s", status, models.StatusSucceeded, models.StatusFailed)
			}
			var id uuid.UUID
			if len(args) == 1 {
				var err error
				if id, err = uuid.Parse(args[0]); err != nil {
					return errors.Wrapf(err, "invalid conversion id %q", args[0])
				}
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				return errors.New("ledger is disabled; set ledger.enabled in the config file")
			}
			db, err := repository.Open(cfg.Ledger)
			if err != nil {
				return err
			}
			defer repository.Close(db) //nolint:errcheck
			repo := repository.NewConversionRepository(db)

			if id != uuid.Nil {
				c, err := repo.Get(cmd.Context(), id)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.Errorf("conversion %s not found", id)
				}
				if err != nil {
					return errors.Wrap(err, "could not read ledger")
				}
				printDetail(cmd.OutOrStdout(), c)
				return nil
			}

			var conversions []models.Conversion
			if status != "" {
				conversions, err = repo.ListByStatus(cmd.Context(), status, limit)
			} else {
				conversions, err = repo.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return errors.Wrap(err, "could not read ledger")
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = tw.Write([]byte("ID\tSTARTED\tSTATUS\tDURATION\tINPUT\tOUTPUT\tERROR\n"))
			for _, c := range conversions {
				printConversion(tw, c)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of conversions to show (0 for all)")
	cmd.Flags().StringVar(&status, "status", "", "only show conversions with this status (succeeded or failed)")
	return cmd
}

// printConversion writes a one-line description of c.
func printConversion(w io.Writer, c models.Conversion) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\t%s\t%s\n",
		c.ID,
		c.StartedAt.Local().Format(time.DateTime),
		c.Status,
		c.DurationMs,
		c.Input,
		c.Output,
		c.Error,
	)
}

func printDetail(w io.Writer, c *models.Conversion) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", c.ID)
	fmt.Fprintf(tw, "status:\t%s\n", c.Status)
	fmt.Fprintf(tw, "started:\t%s\n", c.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(tw, "duration:\t%dms\n", c.DurationMs)
	fmt.Fprintf(tw, "input:\t%s\n", c.Input)
	fmt.Fprintf(tw, "scene:\t%s\n", c.SceneFile)
	fmt.Fprintf(tw, "output:\t%s\n", c.Output)
	fmt.Fprintf(tw, "scale:\t%g\n", c.Scale)
	fmt.Fprintf(tw, "images:\t%d (%d missing)\n", c.Images, c.MissingImages)
	if c.ObjectKey != "" {
		fmt.Fprintf(tw, "object:\t%s\n", c.ObjectKey)
	}
	if c.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", c.Error)
	}
	_ = tw.Flush()
}

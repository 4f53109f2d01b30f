package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/millflow/internal/config"
	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/jobfile"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/presentation"
)

var errInvalidJob = errors.New("job is invalid")

func newValidateCmd(c *cli) *cobra.Command {
	var gridX, gridY float64
	cmd := &cobra.Command{
		Use:   "validate JOB",
		Short: "Check every entity of a job file",
		Long: `Check every entity of a job file and report the problems found.

When a support grid is configured (support_grid in the config file, or
--grid-x / --grid-y) the bridge line positions over the job's models are
reported as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			defer job.Close()

			report := presentation.FromProblems(job.Path, job.Validate())

			grid := c.cfg.SupportGrid
			if cmd.Flags().Changed("grid-x") {
				grid.DistanceX = gridX
			}
			if cmd.Flags().Changed("grid-y") {
				grid.DistanceY = gridY
			}
			if grid.Enabled() {
				report.SupportGrid = supportGrid(job, grid)
			}

			f, err := c.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := f.FormatValidation(report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("%w: %s", errInvalidJob, job.Path)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&gridX, "grid-x", 0, "support grid line distance along X")
	cmd.Flags().Float64Var(&gridY, "grid-y", 0, "support grid line distance along Y")
	return cmd
}

// supportGrid places bridge lines over every model that has usable geometry.
func supportGrid(job *jobfile.Job, cfg config.SupportGridConfig) *presentation.SupportGridDTO {
	models := make([]geometry.Model, 0, len(job.Models))
	for _, m := range job.Models {
		g, err := m.Geometry()
		if err != nil {
			log.Warn(log.CatCLI, "model left out of the support grid", "model", m.ID(), "error", err)
			continue
		}
		models = append(models, g)
	}
	minX, maxX, minY, maxY := geometry.SupportGridBounds(models)
	xs, ys := cfg.Grid().Locations(minX, maxX, minY, maxY)
	return presentation.FromSupportGrid(xs, ys)
}

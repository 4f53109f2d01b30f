package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/millflow/internal/config"
)

func newInitConfigCmd(_ *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [PATH]",
		Short: "Write a commented default configuration file",
		Long: `Write a commented default configuration file.

PATH defaults to ` + config.ProjectConfigPath + ` in the current directory. An
existing file is kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s: %w (use --force to overwrite)", path, fs.ErrExist)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alottabits/boardfarm-bdd-sub001/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

// Execute runs the farmctl root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "farmctl",
		Short:         "Device workflow orchestration over collaborator log correlation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				cfg = config.Default()
				return nil
			}
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (YAML)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(rebootCmd(), viewCmd())

	err := root.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "farmctl: %v\n", err)
	}
	return err
}

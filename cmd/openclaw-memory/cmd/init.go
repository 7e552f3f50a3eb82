package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold the memory directories for this project",
		Long: `Create the global and project memory directories and a project
config file, so memories have somewhere to land before the first write.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			globalDir := config.GlobalDir()
			if err := config.EnsureScopeDirs(globalDir, true); err != nil {
				return err
			}
			projectDir := config.ProjectDir(cwd)
			if err := config.EnsureScopeDirs(projectDir, false); err != nil {
				return err
			}

			configPath := cwd + string(os.PathSeparator) + config.ProjectConfigName
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				stub := "[project]\nname = \"\"\ndescription = \"\"\n"
				if err := os.WriteFile(configPath, []byte(stub), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Global memory:  %s\n", globalDir)
			fmt.Fprintf(cmd.OutOrStdout(), "Project memory: %s\n", projectDir)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/benmeehan/irc-conntrack/pkg/file"
	"github.com/spf13/cobra"
)

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	fileClient := file.NewFileService()

	exists, err := fileClient.IsFileExists(path)
	if err != nil {
		return err
	}
	if exists && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}

	if err := fileClient.WriteYamlFile(path, utils.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return err
}

func runConfigValidate(cmd *cobra.Command, path string) error {
	config, err := utils.LoadConfig(path, file.NewFileService())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid; Status API on %s\n", path, config.Address())
	return err
}

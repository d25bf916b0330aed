package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/firescore/internal/secrets"
)

func (a *app) newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints defaults merged with the config file and FIRESCORE_* overrides, as YAML with credentials redacted",
		Args:  cobra.NoArgs,
		RunE:  a.runConfig,
	}
}

func (a *app) runConfig(_ *cobra.Command, _ []string) error {
	raw, err := yaml.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	out, err := yaml.Marshal(secrets.NewRedactor().RedactMap(doc))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	_, err = a.out.Write(out)
	return err
}

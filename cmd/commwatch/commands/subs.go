package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seaglider-ops/commwatch/internal/config"
	"github.com/seaglider-ops/commwatch/internal/subs"
)

// subsCmd loads the subscription layers for a mission directory and prints
// the merged, canonical table. Useful for checking what a mission's pilots
// will actually receive before the glider goes in the water.
func subsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subs <mission-dir>",
		Short: "Print the merged subscription table for a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			missionDir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			loader := subs.NewLoader(
				cfg.LayerPaths(filepath.Join(missionDir, cfg.Subs.File)),
				cfg.Subs.AllowOverride,
				logger,
			)

			table, err := loader.Load()
			if err != nil {
				return fmt.Errorf("load subscription layers: %w", err)
			}

			out, err := yaml.Marshal(table.Raw())
			if err != nil {
				return fmt.Errorf("render table: %w", err)
			}

			fmt.Print(string(out))
			return nil
		},
	}
}

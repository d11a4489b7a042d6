package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/seaglider-ops/commwatch/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print commwatch build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("commwatch"))
		},
	}
}

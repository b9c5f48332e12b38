// Command poi-sweep enumerates every POI matching a keyword inside one or
// more regions and writes one spreadsheet per region.
package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/poi-sweep/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var env envConfig

var rootCmd = &cobra.Command{
	Use:   "poi-sweep",
	Short: "Exhaustive POI search by adaptive area splitting",
	Long: "Queries the AMap polygon search for a keyword and splits every area whose\n" +
		"results hit the provider's per-query ceiling into quadrants, until each\n" +
		"area's results fit. Results are deduplicated per region and written to xlsx.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		env = loadEnv(os.Getenv)
		logging.Setup(env.Log)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

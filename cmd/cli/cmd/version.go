package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spgemm-symbolic/internal/symbolic"
)

// Build information, set with -ldflags "-X .../cmd/cli/cmd.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		names := make([]string, len(symbolic.Strategies))
		for i, s := range symbolic.Strategies {
			names[i] = s.String()
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s version %s\n", BinName(), Version)
		fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(w, "  Go Version: %s (%s/%s, %d CPUs)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
		fmt.Fprintf(w, "  Strategies: %s\n", strings.Join(names, ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

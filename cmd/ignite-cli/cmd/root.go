package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	stdout = color.New()
	okC    = color.New(color.FgHiGreen)
	warnC  = color.New(color.FgYellow)
	errC   = color.New(color.FgHiRed)
)

var rootCmd = &cobra.Command{
	Use:   "ignite-cli",
	Short: "Operator CLI for a local ignite store",
	Long: "ignite-cli opens an ignite datapool directly (no server in front of it) " +
		"and runs a single get/set/delete/cas/incr/decr/expire/stats operation against it.",
	SilenceUsage: true,
}

func init() {
	color.Output = colorable.NewColorableStdout()
	color.Error = colorable.NewColorableStderr()

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.ignite-cli.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.String("data-dir", "", "ignite data directory")
	flags.String("datapool-path", "", "file path for a memory-mapped datapool (default: anonymous heap)")
	flags.Uint64("heap-size", 0, "total datapool size in bytes")
	flags.Uint32("segment-size", 0, "per-segment size in bytes")
	flags.String("eviction", "", "eviction policy: none, random, fifo, cte, merge")
	flags.String("time-type", "", "ttl interpretation: unix, delta, memcache")

	for _, name := range []string{"data-dir", "datapool-path", "heap-size", "segment-size", "eviction", "time-type"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(getCmd, setCmd, deleteCmd, casCmd, incrCmd, decrCmd, expireCmd, statsCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".ignite-cli")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("IGNITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

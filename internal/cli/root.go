// Package cli implements trafficctl, the manual verification tool for the
// ingest function.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("trafficctl")

const (
	keyAPIURL = "api_gateway_url"
	keyBucket = "s3_bucket_name"
	keyRegion = "aws_region"

	defaultLocalBucket = "local-traffic-logs"
)

// app carries state shared by every subcommand.
type app struct {
	envFile string
	verbose bool
	v       *viper.Viper
}

// NewRootCommand builds the trafficctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "trafficctl",
		Short: "Exercise the traffic logging endpoint",
		Long: `trafficctl sends test events to a deployed traffic logging API, signed
or unsigned, or runs the ingest handler in-process.

Configuration is read from a .env file, then the environment, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if a.verbose {
				level = "info"
			}
			if err := logging.SetLogLevel("*", level); err != nil {
				return err
			}
			v, err := loadConfig(a.envFile)
			if err != nil {
				return err
			}
			a.v = v
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log handler activity")

	root.AddCommand(
		a.newSendCommand(),
		a.newSendSignedCommand(),
		a.newLocalCommand(),
		a.newTestCommand(),
		a.newServeCommand(),
	)
	return root
}

func loadConfig(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyBucket, defaultLocalBucket)

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
			log.Infow("loaded env file", "path", envFile)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()
	return v, nil
}

// targetURL picks the endpoint from the first argument or API_GATEWAY_URL.
func (a *app) targetURL(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if u := a.v.GetString(keyAPIURL); u != "" {
		return u, nil
	}
	return "", errors.New("no endpoint URL: pass it as an argument or set API_GATEWAY_URL")
}

func isPlaceholderURL(u string) bool {
	return strings.Contains(u, "xxxxxxxxxx")
}

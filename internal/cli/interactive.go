package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"traffic-logger/internal/apiclient"
	"traffic-logger/internal/store"
)

func (a *app) newTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test [url]",
		Short: "Test the live API or the local handler, prompting when needed",
		Long: `With a URL argument the live API is tested. Without one, if API_GATEWAY_URL
is configured you are asked whether to test live or locally; otherwise you are
asked whether to run the local test.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())
			bucket := a.v.GetString(keyBucket)

			if len(args) > 0 {
				return runLive(ctx, out, apiclient.New(), args[0], apiTestPayload())
			}

			if url := a.v.GetString(keyAPIURL); url != "" {
				fmt.Fprintf(out, "API URL from configuration: %s\n\n", url)
				switch prompt(in, out, "Test (1) live API or (2) locally? (1/2): ") {
				case "1":
					return runLive(ctx, out, apiclient.New(), url, apiTestPayload())
				case "2":
					return runLocal(ctx, out, store.NewMemory(), bucket)
				default:
					fmt.Fprintln(out, "\nAborted.")
					return nil
				}
			}

			fmt.Fprintln(out, "Usage:")
			fmt.Fprintln(out, "  Local test:     trafficctl test")
			fmt.Fprintln(out, "  Live API test:  trafficctl test https://<api-id>.execute-api.<region>.amazonaws.com/prod/log")
			fmt.Fprintln(out, "  Or set API_GATEWAY_URL in .env")
			fmt.Fprintln(out)

			if isYes(prompt(in, out, "Run the handler locally? (y/n): ")) {
				return runLocal(ctx, out, store.NewMemory(), bucket)
			}
			fmt.Fprintln(out, "\nAborted.")
			return nil
		},
	}
}

func prompt(in *bufio.Reader, out io.Writer, question string) string {
	fmt.Fprint(out, question)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func isYes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes", "j", "ja":
		return true
	}
	return false
}

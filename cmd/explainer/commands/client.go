package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slidedeck/explainer/internal/client"
)

var (
	apiURL       string
	wait         bool
	pollInterval time.Duration
	pollAttempts int
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a deck to a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := client.New(serverURL()).UploadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded file UID: %s\n", uid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <uid>",
	Short: "Show the processing status of an uploaded deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL())
		out := cmd.OutOrStdout()

		if !wait {
			st, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd, st)
			return nil
		}

		ctx, stop := signalContext()
		defer stop()
		st, err := c.Wait(ctx, args[0], pollInterval, pollAttempts, func(s *client.Status) {
			fmt.Fprintf(out, "File status: %s\n", s.Status)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Explanation: %s\n", st.Explanation)
		return nil
	},
}

func printStatus(cmd *cobra.Command, st *client.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File status: %s\n", st.Status)
	fmt.Fprintf(out, "Filename: %s\n", st.Filename)
	fmt.Fprintf(out, "Uploaded: %s\n", st.Timestamp.Format(time.RFC3339))
	if st.IsDone() {
		fmt.Fprintf(out, "Explanation: %s\n", st.Explanation)
	}
}

func serverURL() string {
	if apiURL != "" {
		return apiURL
	}
	return cfg.APIURL
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, statusCmd} {
		c.Flags().StringVar(&apiURL, "api-url", "", "server base URL (default $API_URL)")
		rootCmd.AddCommand(c)
	}
	statusCmd.Flags().BoolVar(&wait, "wait", false, "poll until the deck is processed")
	statusCmd.Flags().DurationVar(&pollInterval, "interval", 5*time.Second, "poll interval with --wait")
	statusCmd.Flags().IntVar(&pollAttempts, "attempts", 10, "polls before giving up with --wait")
}

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/catalogd/pkg/api"
	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
)

func newCallbackCommand() *cobra.Command {
	var (
		server      string
		path        string
		fail        bool
		errorCode   int
		description string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "callback <work-item-id>",
		Short: "Deliver a callback by hand",
		Long: `Post an executor callback for a work item to a running server.

Use this to resolve a work item whose executor never called back, or to drive a
chain by hand while testing with the webhook sender.`,
		Example: `  # Report success
  catalogd callback 6f1c... --output "deployed 1.4.2"

  # Report failure
  catalogd callback 6f1c... --fail --error-code 500 --description "disk full"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb := engine.Callback{
				RequestID:        args[0],
				Status:           engine.CallbackSuccess,
				ErrorCode:        errorCode,
				ErrorDescription: description,
				Output:           output,
			}
			if fail {
				cb.Status = engine.CallbackFail
			}

			body, err := json.Marshal(cb)
			if err != nil {
				return fmt.Errorf("failed to encode callback: %w", err)
			}

			url := strings.TrimRight(server, "/") + path
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("failed to build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			log.Debug().Str("url", url).Str("work_item_id", cb.RequestID).Str("status", cb.Status).Msg("Posting callback")

			resp, err := (&http.Client{Timeout: clientTimeout}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", server, err)
			}
			defer resp.Body.Close()

			var answer api.CallbackResponse
			if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
				return fmt.Errorf("server answered %d with an unreadable body: %w", resp.StatusCode, err)
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), answer)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("callback rejected (%d): %s", resp.StatusCode, answer.Error)
			}
			if answer.Status != "ok" {
				fmt.Fprintf(cmd.OutOrStdout(), "! Callback %s: %s (%s)\n", answer.Status, answer.Error, answer.Code)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Work item %s resolved\n", cb.RequestID)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost"+config.DefaultListenAddress, "catalogd server URL")
	cmd.Flags().StringVar(&path, "path", config.DefaultCallbackPath, "callback path of the server")
	cmd.Flags().BoolVar(&fail, "fail", false, "report failure instead of success")
	cmd.Flags().IntVar(&errorCode, "error-code", 0, "executor error code")
	cmd.Flags().StringVar(&description, "description", "", "executor error description")
	cmd.Flags().StringVar(&output, "output", "", "executor output")

	return cmd
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/catalogd/pkg/api"
	"github.com/openfroyo/catalogd/pkg/engine"
)

const clientTimeout = 30 * time.Second

func newWorkItemsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workitems",
		Aliases: []string{"wi"},
		Short:   "Inspect work items",
	}

	cmd.AddCommand(newWorkItemsListCommand())

	return cmd
}

func newWorkItemsListCommand() *cobra.Command {
	var (
		server    string
		serviceID string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live work items",
		Long: `List the work items that are dispatched or queued.

Without --server the configured store is read directly, which only works for
persistent storage. With --server the running API is asked instead.`,
		Example: `  # Read the SQLite store
  catalogd workitems list --config catalogd.yaml

  # Ask a running server
  catalogd workitems list --server http://localhost:8080 --service svc-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				items []*engine.WorkItem
				err   error
			)
			if server != "" {
				items, err = fetchWorkItems(cmd.Context(), server, serviceID)
			} else {
				items, err = readWorkItems(cmd.Context(), serviceID)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), items)
			}
			return printWorkItems(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "catalogd server URL")
	cmd.Flags().StringVar(&serviceID, "service", "", "only list work items of this service")

	return cmd
}

func readWorkItems(ctx context.Context, serviceID string) ([]*engine.WorkItem, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	items, err := store.ListWorkItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	if serviceID == "" {
		return items, nil
	}

	var filtered []*engine.WorkItem
	for _, item := range items {
		if item.Service.ID == serviceID {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func fetchWorkItems(ctx context.Context, server, serviceID string) ([]*engine.WorkItem, error) {
	url := strings.TrimRight(server, "/") + "/v1/workitems"
	if serviceID != "" {
		url += "?serviceId=" + serviceID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := (&http.Client{Timeout: clientTimeout}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var list api.WorkItemList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode work items: %w", err)
	}
	return list.WorkItems, nil
}

func printWorkItems(out io.Writer, items []*engine.WorkItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "No work items")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tACTION\tSERVICE\tTARGET\tSTATE\tNEXT\tREQUESTED"); err != nil {
		return err
	}
	for _, item := range items {
		state := "queued"
		if item.DispatchedAt != nil {
			state = "dispatched"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			item.Action(),
			item.Service.Name,
			target(item),
			state,
			dash(item.NextID),
			item.RequestedAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return w.Flush()
}

func target(item *engine.WorkItem) string {
	switch {
	case item.Host != nil && item.Endpoint != nil:
		return item.Host.Name + " -> " + item.Endpoint.Name
	case item.Host != nil:
		return item.Host.Name
	case item.Endpoint != nil:
		return item.Endpoint.Name
	case item.Module != nil:
		return item.Module.Name
	default:
		return "-"
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}


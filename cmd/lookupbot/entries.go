package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lookupbot/internal/knowledge"
	"lookupbot/internal/model"
)

func newEntriesCommand(baseURL *string, asJSON *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "entries", Short: "Knowledge base entries"}

	var key string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", fmt.Sprint(limit))
			if key != "" {
				q.Set("key", key)
			}
			var out struct {
				Entries []model.Entry `json:"entries"`
			}
			if err := newAPIClient(*baseURL).do(http.MethodGet, "/api/v1/entries?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			return printEntriesTable(cmd.OutOrStdout(), out.Entries)
		},
	}
	listCmd.Flags().StringVar(&key, "key", "", "Only entries carrying this key")
	listCmd.Flags().IntVar(&limit, "limit", 1000, "Maximum entries to show")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "add <keys> <text...>",
		Short: "Append an entry; keys are comma-separated",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Entry model.Entry `json:"entry"`
			}
			body := map[string]any{"keys": args[0], "text": strings.Join(args[1:], " ")}
			if err := newAPIClient(*baseURL).do(http.MethodPost, "/api/v1/entries", body, &out); err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", strings.Join(out.Entry.Keys, ", "))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <keys>",
		Short: "Delete every entry carrying any of the keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Result model.DeleteResult `json:"result"`
			}
			if err := newAPIClient(*baseURL).do(http.MethodDelete, "/api/v1/entries/"+url.PathEscape(args[0]), nil, &out); err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			if len(out.Result.Deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted: %s\n", strings.Join(out.Result.Deleted, ", "))
			}
			if len(out.Result.NotFound) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "not found: %s\n", strings.Join(out.Result.NotFound, ", "))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit <keys> <text...>",
		Short: "Replace the text of the first entry carrying any of the keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"text": strings.Join(args[1:], " ")}
			if err := newAPIClient(*baseURL).do(http.MethodPut, "/api/v1/entries/"+url.PathEscape(args[0]), body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "match <message...>",
		Short: "Show the replies the bot would send for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Texts []string `json:"texts"`
			}
			q := url.Values{"q": {strings.Join(args, " ")}}
			if err := newAPIClient(*baseURL).do(http.MethodGet, "/api/v1/match?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			if len(out.Texts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no match")
				return nil
			}
			for i, text := range out.Texts {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "---")
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		},
	})
	return cmd
}

func printEntriesTable(w io.Writer, items []model.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKEYS\tTEXT")
	for i, e := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, strings.Join(e.Keys, ","), knowledge.Preview(e.Text, 60))
	}
	return tw.Flush()
}

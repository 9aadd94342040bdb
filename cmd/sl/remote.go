package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	segmentlinesdk "segmentline/sdk/go"
)

// remoteCmd drives a running `sl serve` instance through its HTTP API.
func remoteCmd() *cobra.Command {
	var baseURL string
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Drive the compose session of a running server",
	}
	remote.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")

	client := func() *segmentlinesdk.Client {
		c := segmentlinesdk.New(baseURL)
		if t := viper.GetInt("timeout"); t > 0 {
			c.Timeout = time.Duration(t) * time.Second
		}
		return c
	}
	simple := func(use, short string, call func(*cobra.Command, *segmentlinesdk.Client) (segmentlinesdk.View, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := call(cmd, client())
				if err != nil {
					return err
				}
				return printRemoteView(v)
			},
		}
	}

	remote.AddCommand(simple("view", "Show the current compose state", func(cmd *cobra.Command, c *segmentlinesdk.Client) (segmentlinesdk.View, error) {
		return c.View(cmd.Context())
	}))
	remote.AddCommand(simple("open", "Open a fresh draft", func(cmd *cobra.Command, c *segmentlinesdk.Client) (segmentlinesdk.View, error) {
		return c.Open(cmd.Context())
	}))
	remote.AddCommand(simple("close", "Close and discard the draft", func(cmd *cobra.Command, c *segmentlinesdk.Client) (segmentlinesdk.View, error) {
		return c.Close(cmd.Context())
	}))
	remote.AddCommand(simple("dismiss", "Clear the last submission result", func(cmd *cobra.Command, c *segmentlinesdk.Client) (segmentlinesdk.View, error) {
		return c.Dismiss(cmd.Context())
	}))
	remote.AddCommand(simple("add", "Append an empty slot", func(cmd *cobra.Command, c *segmentlinesdk.Client) (segmentlinesdk.View, error) {
		return c.AddSlot(cmd.Context())
	}))
	remote.AddCommand(simple("submit", "Send the draft to the collector", func(cmd *cobra.Command, c *segmentlinesdk.Client) (segmentlinesdk.View, error) {
		return c.Submit(cmd.Context())
	}))

	remote.AddCommand(&cobra.Command{
		Use:   "name <segment-name>",
		Short: "Rename the segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := client().SetName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRemoteView(v)
		},
	})
	remote.AddCommand(&cobra.Command{
		Use:   "set <index> [value]",
		Short: "Select a schema in a slot; omit value to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot index %q", args[0])
			}
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			v, err := client().SetSlot(cmd.Context(), index, value)
			if err != nil {
				return err
			}
			return printRemoteView(v)
		},
	})
	remote.AddCommand(&cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot index %q", args[0])
			}
			v, err := client().RemoveSlot(cmd.Context(), index)
			if err != nil {
				return err
			}
			return printRemoteView(v)
		},
	})
	return remote
}

func printRemoteView(v segmentlinesdk.View) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	if !v.Open {
		fmt.Println("compose is closed")
		return nil
	}
	fmt.Printf("Segment: %q  Status: %s\n", v.Name, v.Status)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Slot", "Selected", "Offered"})
	for i, sel := range v.Slots {
		var offered []string
		if i < len(v.Availability) {
			for _, e := range v.Availability[i] {
				offered = append(offered, e.Value)
			}
		}
		if sel == "" {
			sel = "-"
		}
		tw.AppendRow(table.Row{i, sel, strings.Join(offered, ", ")})
	}
	tw.Render()
	if v.Result != nil {
		fmt.Printf("%s: %s\n", v.Result.Outcome, v.Result.Message)
	}
	return nil
}

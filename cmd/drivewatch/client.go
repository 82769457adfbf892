package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/api"
	"github.com/drivewatch/drivewatch/internal/config"
)

const clientTimeout = 10 * time.Second

// client talks to the REST API of a running drivewatch.
type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func newClient(g *globals) *client {
	return &client{
		base:   strings.TrimRight(g.server, "/"),
		apiKey: g.apiKey,
		http:   &http.Client{Timeout: clientTimeout},
	}
}

func (c *client) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(config.DefaultAuthHeader, c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current ranked alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(g)
			var health api.HealthResponse
			if err := c.do(http.MethodGet, "/api/v1/health", &health); err != nil {
				return err
			}
			var current api.AlertsResponse
			if err := c.do(http.MethodGet, "/api/v1/alerts", &current); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "monitor %s, dispatch running: %t, channels: %s\n",
				health.Status, health.DispatchRunning, strings.Join(health.Channels, ","))
			return printAlerts(out, current.Alerts)
		},
	}
}

func newSnoozeCmd(g *globals) *cobra.Command {
	var d time.Duration
	cmd := &cobra.Command{
		Use:   "snooze <component>",
		Short: "Snooze the current alert for a component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/alerts/" + url.PathEscape(args[0]) + "/snooze"
			if d > 0 {
				path += "?for=" + url.QueryEscape(d.String())
			}
			var resp api.SnoozeResponse
			if err := newClient(g).do(http.MethodPost, path, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s snoozed until %s\n", resp.Component, resp.SnoozedUntil)
			return nil
		},
	}
	cmd.Flags().DurationVar(&d, "for", 0, "snooze duration (default: configured snooze duration)")
	return cmd
}

func newHistoryCmd(g *globals) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List alerts recorded within a time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/alerts/history"
			if window > 0 {
				path += "?window=" + url.QueryEscape(window.String())
			}
			var resp api.HistoryResponse
			if err := newClient(g).do(http.MethodGet, path, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "window %s\n", resp.Window)
			return printAlerts(cmd.OutOrStdout(), resp.Alerts)
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "history window (default: configured history window)")
	return cmd
}

func printAlerts(w io.Writer, alerts []alert.Alert) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, "no alerts")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tLEVEL\tPROBABILITY\tPRIORITY\tTIME\tSNOOZED UNTIL")
	for _, a := range alerts {
		snoozed := "-"
		if a.SnoozedUntil != nil {
			snoozed = a.SnoozedUntil.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\t%s\n",
			a.Component, a.Level, a.Probability, a.Priority,
			a.Timestamp.Local().Format(time.RFC3339), snoozed)
	}
	return tw.Flush()
}

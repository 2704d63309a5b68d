package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:           "cadencectl",
		Short:         "Operate the Cadence scheduling engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&server, "server", envOr("CADENCE_API_URL", defaultServer), "Cadence API base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	client := func() *apiClient {
		return newAPIClient(strings.TrimRight(server, "/")+"/api", timeout)
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(client),
		newRunsCmd(client),
		newBuildWeekCmd(client),
		newJanitorCmd(client),
		newStatsCmd(client),
		newDueCmd(client),
		newSlotsCmd(client),
		newBucketsCmd(client),
		newDupCheckCmd(client),
		newPostedCmd(client),
		newFailedCmd(client),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printData(cmd *cobra.Command, client func() *apiClient, method, path string, query map[string]string, body any) error {
	data, err := client().call(method, path, query, body)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(data))
	return nil
}

func newAnalyzeCmd(client func() *apiClient) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run engagement analysis now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printData(cmd, client, http.MethodPost, "/analysis/run", nil, map[string]string{"platform": platform})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "analyze a single platform")
	return cmd
}

func newRunsCmd(client func() *apiClient) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent analysis runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printData(cmd, client, http.MethodGet, "/analysis/runs", map[string]string{"limit": strconv.Itoa(limit)}, nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func newBuildWeekCmd(client func() *apiClient) *cobra.Command {
	var (
		start     string
		dailyCap  int
		minDays   int
		quotas    []string
		platforms []string
	)
	cmd := &cobra.Command{
		Use:   "build-week",
		Short: "Build seven days of queue entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseQuotas(quotas)
			if err != nil {
				return err
			}
			body := map[string]any{
				"start_date":             start,
				"per_platform_daily_cap": dailyCap,
				"category_quotas":        parsed,
				"platforms":              platforms,
			}
			// 未指定时交给服务端取配置，显式 0 表示不限间隔
			if cmd.Flags().Changed("min-days") {
				body["min_days_between_reposts"] = minDays
			}
			return printData(cmd, client, http.MethodPost, "/queue/build-week", nil, body)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD), defaults to tomorrow")
	cmd.Flags().IntVar(&dailyCap, "cap", 0, "entries per platform per day")
	cmd.Flags().IntVar(&minDays, "min-days", 0, "minimum days between reposts, 0 disables the window (default from server config)")
	cmd.Flags().StringSliceVar(&quotas, "quota", nil, "category quota as category=n, repeatable")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "restrict to platforms")
	return cmd
}

// parseQuotas 解析 category=n
func parseQuotas(raw []string) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid quota %q, expected category=n", item)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid quota %q, expected category=n", item)
		}
		out[name] = n
	}
	return out, nil
}

func newJanitorCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "janitor",
		Short: "Prune stale queued entries now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printData(cmd, client, http.MethodPost, "/queue/janitor", nil, nil)
		},
	}
}

func newStatsCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts by status and platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printData(cmd, client, http.MethodGet, "/queue/stats", nil, nil)
		},
	}
}

func newDueCmd(client func() *apiClient) *cobra.Command {
	var (
		platform string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List queued entries that are due for publishing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := map[string]string{"limit": strconv.Itoa(limit)}
			if platform != "" {
				query["platform"] = platform
			}
			return printData(cmd, client, http.MethodGet, "/queue/due", query, nil)
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "filter by platform")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

func newSlotsCmd(client func() *apiClient) *cobra.Command {
	var (
		platform string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show top posting slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := map[string]string{"limit": strconv.Itoa(limit)}
			if platform != "" {
				query["platform"] = platform
			}
			return printData(cmd, client, http.MethodGet, "/slots/top", query, nil)
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "platform, blended across all when empty")
	cmd.Flags().IntVar(&limit, "limit", 5, "number of slots")
	return cmd
}

func newBucketsCmd(client func() *apiClient) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Dump engagement buckets of a platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printData(cmd, client, http.MethodGet, "/slots/buckets", map[string]string{"platform": platform}, nil)
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "platform")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func newDupCheckCmd(client func() *apiClient) *cobra.Command {
	var (
		name    string
		minDays int
	)
	cmd := &cobra.Command{
		Use:   "dup-check <object-key>",
		Short: "Check whether a media object was posted recently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"object_key":             args[0],
				"declared_name":          name,
				"min_days_before_repost": minDays,
			}
			return printData(cmd, client, http.MethodPost, "/content/duplicate-check", nil, body)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "declared file name")
	cmd.Flags().IntVar(&minDays, "min-days", 0, "repost window in days")
	return cmd
}

func newPostedCmd(client func() *apiClient) *cobra.Command {
	var externalID string
	cmd := &cobra.Command{
		Use:   "posted <entry-id>",
		Short: "Mark a queued entry as posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			body := map[string]string{}
			if externalID != "" {
				body["external_post_id"] = externalID
			}
			return printData(cmd, client, http.MethodPost, "/queue/"+args[0]+"/posted", nil, body)
		},
	}
	cmd.Flags().StringVar(&externalID, "external-id", "", "platform post id, optional")
	return cmd
}

func newFailedCmd(client func() *apiClient) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "failed <entry-id>",
		Short: "Mark a queued entry as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			body := map[string]string{"error": reason}
			return printData(cmd, client, http.MethodPost, "/queue/"+args[0]+"/failed", nil, body)
		},
	}
	cmd.Flags().StringVar(&reason, "error", "", "failure reason")
	_ = cmd.MarkFlagRequired("error")
	return cmd
}

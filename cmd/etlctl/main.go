// Command etlctl drives the ETL service from a shell or cron entry. Each
// subcommand maps one-to-one onto an HTTP endpoint and exits non-zero on
// failure so it composes with ordinary job schedulers.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const usage = `usage: etlctl <command> [flags]

commands:
  run          queue an ETL job (full_run or backfill)
  status       show a job (latest by default)
  logs         list ledger history
  clear        truncate summary tables (optionally the ledger)
  clear-stuck  run the stuck-job reaper now
  force-clear  fail all running jobs unconditionally

environment:
  ETL_API_URL    base URL of the service (default http://localhost:8080)
  ETL_API_TOKEN  bearer token for /api endpoints
`

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	c := &client{
		baseURL: envOr("ETL_API_URL", "http://localhost:8080"),
		token:   os.Getenv("ETL_API_TOKEN"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "run":
		err = c.run(os.Args[2:])
	case "status":
		err = c.status(os.Args[2:])
	case "logs":
		err = c.logs(os.Args[2:])
	case "clear":
		err = c.clear(os.Args[2:])
	case "clear-stuck":
		err = c.do(http.MethodPost, "/api/v1/etl/clear-stuck", nil)
	case "force-clear":
		err = c.do(http.MethodPost, "/api/v1/etl/force-clear", nil)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "etlctl:", err)
		os.Exit(1)
	}
}

func (c *client) run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	kind := fs.String("kind", "full_run", "job kind: full_run or backfill")
	startDate := fs.String("start-date", "", "backfill start date (YYYY-MM-DD)")
	concurrency := fs.Int("concurrency", 1, "parallel day chunks for backfill (1-10)")
	_ = fs.Parse(args)

	body := map[string]any{"kind": *kind}
	if *startDate != "" {
		body["start_date"] = *startDate
	}
	if *concurrency != 1 {
		body["concurrency"] = *concurrency
	}
	return c.do(http.MethodPost, "/api/v1/etl/run", body)
}

func (c *client) status(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jobID := fs.Int64("job-id", 0, "job id (0 = latest)")
	_ = fs.Parse(args)

	path := "/api/v1/etl/status"
	if *jobID > 0 {
		path = fmt.Sprintf("%s?job_id=%d", path, *jobID)
	}
	return c.do(http.MethodGet, path, nil)
}

func (c *client) logs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	limit := fs.Int("limit", 50, "max rows")
	offset := fs.Int("offset", 0, "rows to skip")
	status := fs.String("status", "", "filter by status")
	_ = fs.Parse(args)

	path := fmt.Sprintf("/api/v1/etl/logs?limit=%d&offset=%d", *limit, *offset)
	if *status != "" {
		path += "&status=" + *status
	}
	return c.do(http.MethodGet, path, nil)
}

func (c *client) clear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	includeLogs := fs.Bool("include-logs", false, "also clear the job ledger")
	_ = fs.Parse(args)

	return c.do(http.MethodPost, "/api/v1/etl/clear", map[string]any{
		"include_logs": *includeLogs,
	})
}

func (c *client) do(method, path string, body any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	out, _ := io.ReadAll(resp.Body)
	printJSON(out)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func printJSON(raw []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

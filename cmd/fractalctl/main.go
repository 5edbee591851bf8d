package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"Fractal/internal/domain/models"
	xhttp "Fractal/pkg/http"
)

const basePath = "/api/fractal/v2.1"

const usage = `usage: fractalctl [flags] <command> [args]

commands:
  terminal <symbol>          six-horizon consensus and decision
  focus <symbol> <horizon>   raw focus pack as JSON
  candles <symbol>           candle count and date range
  snapshots <symbol>         stored kernel snapshots
  write-snapshots <symbol>   record today's kernel snapshots
  resolve-outcomes <symbol>  settle snapshots whose horizon has elapsed
  forward-stats <symbol>     hit rate and realized return of settled snapshots
  intel <symbol>             per-day phase and consensus timeline as JSON
`

func main() {
	addr := flag.String("addr", envOr("FRACTAL_ADDR", "http://localhost:8080"), "server base URL")
	focus := flag.String("focus", "30d", "focus horizon for terminal")
	preset := flag.String("preset", "balanced", "risk preset for terminal")
	extended := flag.Bool("extended", false, "request every horizon forecast")
	limit := flag.Int("limit", 36, "row limit for snapshots")
	window := flag.Int("window", 90, "trailing days for intel")
	timeout := flag.Duration("timeout", 60*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := xhttp.NewClient(xhttp.WithBaseURL(*addr), xhttp.WithTimeout(*timeout))
	cmd, symbol := args[0], args[1]

	var err error
	switch cmd {
	case "terminal":
		set := "default"
		if *extended {
			set = "extended"
		}
		var t models.Terminal
		err = c.Call(ctx, get("/terminal", map[string][]string{
			"symbol": {symbol}, "focus": {*focus}, "preset": {*preset}, "set": {set},
		}), &t)
		if err == nil {
			err = renderTerminal(os.Stdout, &t)
		}
	case "focus":
		if len(args) < 3 {
			flag.Usage()
			os.Exit(2)
		}
		var raw json.RawMessage
		err = c.Call(ctx, get("/focus-pack", map[string][]string{"symbol": {symbol}, "focus": {args[2]}}), &raw)
		if err == nil {
			err = printJSON(os.Stdout, raw)
		}
	case "candles":
		var cr models.CandlesResponse
		err = c.Call(ctx, get("/candles", map[string][]string{"symbol": {symbol}, "limit": {"50000"}}), &cr)
		if err == nil {
			err = renderCandles(os.Stdout, &cr)
		}
	case "snapshots":
		var sl models.SnapshotList
		err = c.Call(ctx, get("/admin/memory/snapshots", map[string][]string{
			"symbol": {symbol}, "limit": {strconv.Itoa(*limit)},
		}), &sl)
		if err == nil {
			err = renderSnapshots(os.Stdout, &sl)
		}
	case "write-snapshots":
		var res models.SnapshotWriteResult
		err = c.Call(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodPost,
			Path:        basePath + "/admin/memory/write-snapshots",
			QueryParams: map[string][]string{"symbol": {symbol}},
		}, &res)
		if err == nil {
			err = renderWriteResult(os.Stdout, &res)
		}
	case "resolve-outcomes":
		var raw json.RawMessage
		err = c.Call(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodPost,
			Path:        basePath + "/admin/memory/resolve-outcomes",
			QueryParams: map[string][]string{"symbol": {symbol}},
		}, &raw)
		if err == nil {
			err = printJSON(os.Stdout, raw)
		}
	case "forward-stats":
		var raw json.RawMessage
		err = c.Call(ctx, get("/admin/memory/forward-stats", map[string][]string{"symbol": {symbol}}), &raw)
		if err == nil {
			err = printJSON(os.Stdout, raw)
		}
	case "intel":
		var raw json.RawMessage
		err = c.Call(ctx, get("/admin/intel/timeline", map[string][]string{
			"symbol": {symbol}, "window": {strconv.Itoa(*window)},
		}), &raw)
		if err == nil {
			err = printJSON(os.Stdout, raw)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func get(path string, q map[string][]string) *xhttp.RequestOptions {
	return &xhttp.RequestOptions{Method: xhttp.MethodGet, Path: basePath + path, QueryParams: q}
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns a 425 into the readiness hint the server sent.
func describe(err error) string {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return err.Error()
	}
	var nr struct {
		Reason    string `json:"reason"`
		Hint      string `json:"hint"`
		Required  int    `json:"required"`
		Available int    `json:"available"`
	}
	if se.Status == 425 && json.Unmarshal(se.Data, &nr) == nil && nr.Reason != "" {
		return fmt.Sprintf("not ready: %s (%d/%d candles). %s", nr.Reason, nr.Available, nr.Required, nr.Hint)
	}
	if len(se.Data) > 0 {
		return fmt.Sprintf("%s %s", se.Error(), se.Data)
	}
	return se.Error()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

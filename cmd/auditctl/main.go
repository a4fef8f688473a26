package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/httpx"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

// Testable variables for main()
var (
	osExit     = os.Exit
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Print(err)
		osExit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("command required")
	}
	switch args[0] {
	case "run":
		return runAudit(args[1:], out)
	case "checks":
		return listChecks(args[1:], out)
	case "gates":
		return showGates(args[1:], out)
	default:
		usage(out)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "auditctl commands:")
	fmt.Fprintln(out, "  run [--check name] [--json]     run all consistency checks, or one by name")
	fmt.Fprintln(out, "  checks                          list registered checks")
	fmt.Fprintln(out, "  gates --collection agent        show minimum write roles for a collection")
	fmt.Fprintln(out, "common flags: --addr http://localhost:8080 --role ADMIN")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func addCommonFlags(fs *flag.FlagSet) (addr, role *string) {
	addr = fs.String("addr", envOr("REGISTRY_ADDR", "http://localhost:8080"), "registryd base URL")
	role = fs.String("role", "ADMIN", "role sent with the request")
	return addr, role
}

func runAudit(args []string, out io.Writer) error {
	fs := newFlagSet("run")
	addr, role := addCommonFlags(fs)
	check := fs.String("check", "", "run a single named check")
	asJSON := fs.Bool("json", false, "print the raw report")
	if err := fs.Parse(args); err != nil {
		return err
	}

	url := *addr + "/v1/consistency/run"
	if *check != "" {
		url += "?check=" + *check
	}
	var body json.RawMessage
	if err := call(http.MethodPost, url, *role, &body); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(out, body)
	}
	if *check != "" {
		var result models.ConsistencyResult
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		printResult(out, result)
		return nil
	}
	var report models.ConsistencyReport
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	fmt.Fprintf(out, "report %s  health %d/100\n", report.ReportID, report.OverallHealth)
	for _, result := range report.CheckResults {
		printResult(out, result)
	}
	for _, rec := range report.Recommendations {
		fmt.Fprintf(out, "  -> %s\n", rec)
	}
	return nil
}

func printResult(out io.Writer, r models.ConsistencyResult) {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	sev := ""
	if r.Critical {
		sev = " [critical]"
	}
	fmt.Fprintf(out, "%s  %s%s  %s\n", status, r.Name, sev, r.Details)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "      error: %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "      warn:  %s\n", w)
	}
}

func listChecks(args []string, out io.Writer) error {
	fs := newFlagSet("checks")
	addr, role := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	var resp struct {
		Running bool               `json:"running"`
		Checks  []models.CheckInfo `json:"checks"`
	}
	if err := call(http.MethodGet, *addr+"/v1/consistency", *role, &resp); err != nil {
		return err
	}
	fmt.Fprintf(out, "monitor running: %v\n", resp.Running)
	for _, c := range resp.Checks {
		sev := "standard"
		if c.Critical {
			sev = "critical"
		}
		fmt.Fprintf(out, "%-22s %-8s %s\n", c.Name, sev, c.Description)
	}
	return nil
}

func showGates(args []string, out io.Writer) error {
	fs := newFlagSet("gates")
	addr, role := addCommonFlags(fs)
	collection := fs.String("collection", "", "collection name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *collection == "" {
		return errors.New("collection required")
	}
	var matrix models.GateMatrix
	if err := call(http.MethodGet, *addr+"/v1/gates/"+*collection, *role, &matrix); err != nil {
		return err
	}
	fmt.Fprintf(out, "collection %s\n", matrix.Collection)
	for _, op := range models.Operations() {
		fmt.Fprintf(out, "  %-7s requires %s\n", op, matrix.MinimumBy[op])
	}
	return nil
}

func call(method, url, role string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	headers := map[string]string{"X-Registry-Role": role}
	status, body, err := httpx.RequestJSON(ctx, httpClient, method, url, nil, headers, 0, 0)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, url, status, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

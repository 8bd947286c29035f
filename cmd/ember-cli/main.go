package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/emberops/ember/internal/report"
	"github.com/emberops/ember/internal/slo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		os.Exit(runValidateCmd(os.Args[2:]))
	case "report":
		os.Exit(runReportCmd(os.Args[2:]))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ember <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate --dir <path>                  Validate SLO YAML files in a directory")
	fmt.Println("  report --slo <id> [--period <period>]  Fetch an SLO report from a running server")
	fmt.Println()
}

func runValidateCmd(args []string) int {
	cmd := flag.NewFlagSet("validate", flag.ExitOnError)
	dir := cmd.String("dir", "", "directory containing SLO YAML files")
	schema := cmd.String("schema", "", "path to SLO JSON schema (default: auto-detect)")
	cmd.Parse(args)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
		cmd.Usage()
		return 1
	}

	schemaPath := *schema
	if schemaPath == "" {
		schemaPath = findSchemaFile()
	}
	if schemaPath == "" {
		fmt.Fprintln(os.Stderr, "Error: could not find schemas/slo_v1.json, pass --schema")
		return 1
	}

	validator, err := slo.NewValidator(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	fileErrors := validator.ValidateDirectory(*dir)
	if len(fileErrors) == 0 {
		fmt.Println("✓ All SLO files are valid")
		return 0
	}

	sort.Slice(fileErrors, func(i, j int) bool {
		return fileErrors[i].File < fileErrors[j].File
	})

	fmt.Fprintf(os.Stderr, "✗ Validation failed with %d error(s):\n\n", len(fileErrors))
	for _, fe := range fileErrors {
		if fe.Path != "" {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(fe.File), fe.Path, fe.Message)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(fe.File), fe.Message)
		}
	}
	return 1
}

func runReportCmd(args []string) int {
	cmd := flag.NewFlagSet("report", flag.ExitOnError)
	server := cmd.String("server", "http://localhost:8080", "ember server base URL")
	sloID := cmd.String("slo", "", "SLO id")
	period := cmd.String("period", string(report.PeriodWeek), "report period (day|week|month|quarter|year)")
	asJSON := cmd.Bool("json", false, "print the raw JSON response")
	cmd.Parse(args)

	if *sloID == "" {
		fmt.Fprintln(os.Stderr, "Error: --slo flag is required")
		cmd.Usage()
		return 1
	}

	endpoint := fmt.Sprintf("%s/v1/slos/%s/report?period=%s",
		*server, url.PathEscape(*sloID), url.QueryEscape(*period))

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: request failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, apiErr.Error)
		return 1
	}

	var rep report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid response: %v\n", err)
		return 1
	}

	if *asJSON {
		out, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	printReport(&rep)
	return 0
}

func printReport(r *report.Report) {
	fmt.Printf("SLO:       %s (%s)\n", r.SLOName, r.SLOID)
	fmt.Printf("Period:    %s  %s to %s\n", r.Period,
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Printf("Target:    %.3f%%\n", r.Target)
	fmt.Printf("Achieved:  %.3f%%\n", r.AchievedValue)
	fmt.Printf("Uptime:    %.2f%%\n", r.Uptime*100)
	fmt.Printf("Incidents: %d\n", r.IncidentCount)
	if r.MTTR != nil {
		fmt.Printf("MTTR:      %s\n", r.MTTR.Round(time.Second))
	}
	fmt.Printf("Trend:     %s\n", r.Trend)
}

// findSchemaFile looks for the schema file in common locations.
func findSchemaFile() string {
	candidates := []string{
		"schemas/slo_v1.json",
		"../schemas/slo_v1.json",
		"../../schemas/slo_v1.json",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

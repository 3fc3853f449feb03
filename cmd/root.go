// Package cmd implements the errata-cli command line tool
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ortelius/errata-finder/config"
	"github.com/ortelius/errata-finder/database"
	"github.com/ortelius/errata-finder/errata"
	"github.com/ortelius/errata-finder/model"
	"github.com/ortelius/errata-finder/util"
)

// Output formats
const (
	OutputText  = "text"
	OutputJSON  = "json"
	OutputTable = "table"
)

var errMissingPackage = errors.New("missing rpm_name")

// options holds the flag values that are not database settings
type options struct {
	configFile string
	pkgFile    string
	output     string
	serverURL  string
	verbose    bool
}

// packageResult is the answer for one queried package
type packageResult struct {
	Package    string                 `json:"package"`
	Advisories []model.AdvisoryRecord `json:"advisories"`
}

// lookupFunc answers a single package query
type lookupFunc func(ctx context.Context, pkg string) ([]model.AdvisoryRecord, error)

// NewRootCmd builds the errata-cli command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "errata-cli [flags] rpm_name",
		Short: "Find security advisories that apply to upgrades of an RPM package",
		Long: `Looks up the channels an RPM package is published in, finds newer builds
of the package within the same channel families and lists the security
advisories attached to those builds.

rpm_name is an NVREA file name such as foo-1.0-1.x86_64.rpm or
1:bar-9-123a.ia64.rpm, or an rpm package URL.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringP("dbname", "d", config.DefaultDbName, "database name to connect to")
	flags.StringP("username", "U", config.DefaultDbUser, "database user name")
	flags.StringP("password", "W", config.DefaultDbPassword, "password to use")
	flags.String("host", config.DefaultDbHost, "database server host or socket directory")
	flags.IntP("port", "p", config.DefaultDbPort, "database server port")
	flags.String("driver", config.DriverPostgres, "datastore driver (postgres, sqlite, arangodb)")
	flags.String("sslmode", "disable", "postgres sslmode")
	flags.String("sqlite-path", "errata.db", "path of the sqlite database file")
	flags.String("arango-url", "http://localhost:8529", "ArangoDB endpoint")
	flags.String("connect-timeout", "2m", "give up connecting to the datastore after this long (0 retries forever)")

	flags.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	flags.StringVar(&opts.pkgFile, "pkgfile", "", "file with one rpm_name per line")
	flags.StringVarP(&opts.output, "output", "o", OutputText, "output format (text, json, table)")
	flags.StringVar(&opts.serverURL, "server", "", "query an errata-finder API server instead of the database")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	packages, err := collectPackages(args, opts.pkgFile)
	if err != nil {
		return err
	}
	if len(packages) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Missing rpm_name. Exiting.")
		fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
		return errMissingPackage
	}

	switch opts.output {
	case OutputText, OutputJSON, OutputTable:
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var lookup lookupFunc
	if opts.serverURL != "" {
		lookup = remoteLookup(opts.serverURL)
	} else {
		cfg, err := config.Load(util.GetStringOrDefault(opts.configFile, util.GetEnvDefault("ERRATA_CONFIG", "")))
		if err != nil {
			return err
		}
		if cfg, err = config.MergeFlags(cfg, cmd.Flags()); err != nil {
			return err
		}
		if opts.verbose {
			cfg.LogLevel = "debug"
		}

		logger := database.InitLogger(cfg.LogLevel)
		defer func() { _ = logger.Sync() }()

		store, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		lookup = errata.NewResolver(store, logger).Resolve
		logger.Debug("Querying datastore", zap.String("driver", cfg.Database.Driver), zap.Int("packages", len(packages)))
	}

	results, err := resolveAll(ctx, lookup, packages)
	if err != nil {
		return err
	}
	return writeResults(cmd.OutOrStdout(), opts.output, results)
}

// collectPackages merges the positional argument with the entries of the package file
func collectPackages(args []string, pkgFile string) ([]string, error) {
	var packages []string
	if len(args) > 0 && util.IsNotEmpty(args[0]) {
		packages = append(packages, args[0])
	}
	if pkgFile != "" {
		list, err := util.ReadPackageList(pkgFile)
		if err != nil {
			return nil, err
		}
		packages = append(packages, list...)
	}
	return packages, nil
}

func resolveAll(ctx context.Context, lookup lookupFunc, packages []string) ([]packageResult, error) {
	results := make([]packageResult, 0, len(packages))
	for _, pkg := range packages {
		records, err := lookup(ctx, pkg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", pkg, err)
		}
		if records == nil {
			records = []model.AdvisoryRecord{}
		}
		results = append(results, packageResult{Package: pkg, Advisories: records})
	}
	return results, nil
}

func writeResults(w io.Writer, format string, results []packageResult) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		// a single package prints the same array the HTTP API returns
		if len(results) == 1 {
			return enc.Encode(results[0].Advisories)
		}
		return enc.Encode(results)

	case OutputTable:
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Package", "Advisory", "Package ID", "EVR", "Channel"})
		for _, r := range results {
			for _, rec := range r.Advisories {
				table.Append([]string{r.Package, rec.AdvisoryName, strconv.FormatInt(rec.PackageID, 10), rec.EVR, rec.Channel()})
			}
		}
		table.Render()
		return nil
	}

	for _, r := range results {
		for _, rec := range r.Advisories {
			line := fmt.Sprintf("%s %d %s %s", rec.AdvisoryName, rec.PackageID, rec.EVR, util.GetStringOrDefault(rec.Channel(), "-"))
			if len(results) > 1 {
				line = r.Package + ": " + line
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// remoteLookup queries GET /errata on an errata-finder server
func remoteLookup(serverURL string) lookupFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, pkg string) ([]model.AdvisoryRecord, error) {
		target := strings.TrimRight(serverURL, "/") + "/errata?" + url.Values{"pkg": {pkg}}.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var records []model.AdvisoryRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return records, nil
	}
}

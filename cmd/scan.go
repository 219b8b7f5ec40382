package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crossflow/crossflow/scan"
	"github.com/crossflow/crossflow/taint"
)

var scanOptions struct {
	maxDepth       int
	maxModules     int
	deadlineMS     int
	workers        int
	entryPoints    []string
	ignorePatterns []string
	rulesFile      string
	format         string
	output         string
}

var scanCmd = &cobra.Command{
	Use:   "scan [project root]",
	Short: "Scan a project for cross-module taint flows",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
			logLevel = cfg.LogLevel
		}
		logger := scan.NewLogger("crossflow", logLevel)

		req := cfg.Scan
		if len(args) == 1 {
			req.ProjectRoot = args[0]
		}
		if req.ProjectRoot == "" {
			req.ProjectRoot = "."
		}
		if cmd.Flags().Changed("max-depth") || req.Budget.MaxDepth == 0 {
			req.Budget.MaxDepth = scanOptions.maxDepth
		}
		if cmd.Flags().Changed("max-modules") || req.Budget.MaxModules == 0 {
			req.Budget.MaxModules = scanOptions.maxModules
		}
		if cmd.Flags().Changed("deadline-ms") || req.Budget.DeadlineMS == 0 {
			req.Budget.DeadlineMS = scanOptions.deadlineMS
		}
		if len(scanOptions.entryPoints) > 0 {
			req.EntryPoints = scanOptions.entryPoints
		}
		if len(scanOptions.ignorePatterns) > 0 {
			req.IgnorePatterns = scanOptions.ignorePatterns
		}

		rulesFile := scanOptions.rulesFile
		if rulesFile == "" {
			rulesFile = cfg.Rules
		}
		var rules *taint.RuleSet
		if rulesFile != "" {
			if rules, err = taint.LoadRuleSet(rulesFile); err != nil {
				return err
			}
		}

		format := scanOptions.format
		if !cmd.Flags().Changed("format") && cfg.Format != "" {
			format = cfg.Format
		}

		scanner := scan.NewScanner(
			scan.WithProvider(taint.NewRuleProvider(rules)),
			scan.WithCache(taint.NewMemoryCache()),
			scan.WithWorkers(scanOptions.workers),
			scan.WithLogger(logger),
		)
		result := scanner.Scan(cmd.Context(), req)

		out := os.Stdout
		if scanOptions.output != "" {
			f, err := os.Create(scanOptions.output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		switch format {
		case "sarif":
			if err := result.WriteSARIF(out); err != nil {
				return err
			}
		case "json":
			data, err := result.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		default:
			return fmt.Errorf("unknown output format %q", format)
		}

		if !result.Success {
			return fmt.Errorf("scan failed: %s", result.Error)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanOptions.maxDepth, "max-depth", 10, "maximum module boundary crossings, 0 for unbounded")
	scanCmd.Flags().IntVar(&scanOptions.maxModules, "max-modules", 0, "maximum modules admitted to the search, 0 for unbounded")
	scanCmd.Flags().IntVar(&scanOptions.deadlineMS, "deadline-ms", 0, "scan deadline in milliseconds, 0 for none")
	scanCmd.Flags().IntVar(&scanOptions.workers, "workers", 4, "parallelism for extraction and expansion")
	scanCmd.Flags().StringSliceVar(&scanOptions.entryPoints, "entry", nil, "entry points as file:function, repeatable")
	scanCmd.Flags().StringSliceVar(&scanOptions.ignorePatterns, "ignore", nil, "extra ignore patterns, repeatable")
	scanCmd.Flags().StringVar(&scanOptions.rulesFile, "rules", "", "YAML rule catalog overriding the built-in rules")
	scanCmd.Flags().StringVar(&scanOptions.format, "format", "json", "output format: json or sarif")
	scanCmd.Flags().StringVarP(&scanOptions.output, "output", "o", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(scanCmd)
}

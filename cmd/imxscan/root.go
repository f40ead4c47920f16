package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-imx/imxscan/locate"
	"github.com/go-imx/imxscan/report"
)

// scanOpts holds the flag-backed configuration for a single invocation.
type scanOpts struct {
	verbose              bool
	increment            int
	includeImageContents bool
	extract              bool
	outputFormat         string
	workers              int
}

func newRootCmd() *cobra.Command {
	opts := &scanOpts{}

	cmd := &cobra.Command{
		Use:   "imxscan <path>",
		Short: "Scrape metadata, find, and extract images from i.MX flash images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose debug/searching printouts")
	flags.IntVarP(&opts.increment, "increment", "i", 4, "the amount to increment each address when searching for a container")
	flags.BoolVarP(&opts.includeImageContents, "include-image-contents", "I", false, "include contents of identified containers in the scan results file")
	flags.BoolVarP(&opts.extract, "extract", "e", false, "extract the contents of any identified containers")
	flags.StringVarP(&opts.outputFormat, "output-format", "o", "auto", "select if the scan results should be saved as yaml or pickle (auto|yaml|pickle)")
	flags.IntVar(&opts.workers, "workers", 4, "number of files to scan concurrently")

	return cmd
}

func runScan(cmd *cobra.Command, root string, opts *scanOpts) error {
	format := report.OutputFormat(opts.outputFormat)
	if format != report.FormatAuto && format != report.FormatYAML && format != report.FormatPickle {
		return fmt.Errorf("unknown output format %q", opts.outputFormat)
	}

	files, err := findFiles(root)
	if err != nil {
		return err
	}

	if opts.workers < 1 {
		opts.workers = 1
	}

	formatter := newDTCFormatter()

	warnf := func(format string, args ...any) {}
	if opts.verbose {
		warnf = func(format string, args ...any) {
			log.Printf(format, args...)
		}
	}

	results := make([]report.FileResult, len(files))
	errs := make([]error, len(files))

	sem := make(chan struct{}, opts.workers)
	var wg sync.WaitGroup
	for i, path := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			fmt.Fprintf(cmd.OutOrStdout(), "Searching %s\n", path)
			fr, err := scanFile(path, opts, formatter, warnf)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return
			}
			results[i] = fr

			if opts.verbose && len(fr.Containers) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nFound:")
				for _, c := range fr.Containers {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s @ %#x\n", c.Format, c.Offset)
				}
			}
		}(i, path)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	var nonEmpty []report.FileResult
	for _, fr := range results {
		if len(fr.Containers) > 0 {
			nonEmpty = append(nonEmpty, fr)
		}
	}

	if len(nonEmpty) == 0 {
		return nil
	}

	result := report.Result{Files: nonEmpty}
	toWrite := result
	if !opts.includeImageContents {
		toWrite.Files = make([]report.FileResult, len(result.Files))
		for i, fr := range result.Files {
			toWrite.Files[i] = fr
			toWrite.Files[i].Containers = report.StripImageData(fr.Containers)
		}
	}

	exportBase := "scan_results." + time.Now().Format("2006-01-02T15:04:05Z0700")
	written, err := report.Write(exportBase, toWrite, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saving scan results: %s\n", written)

	if opts.extract {
		for _, fr := range result.Files {
			if _, err := report.ExtractImages(".", fr.Path, fr.Containers); err != nil {
				return err
			}
		}
	}

	return nil
}

func scanFile(path string, opts *scanOpts, formatter *dtcFormatter, warnf func(string, ...any)) (report.FileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return report.FileResult{}, err
	}

	lso := locate.ScanOptions{
		Increment: opts.increment,
		Warnf:     warnf,
	}
	if formatter != nil {
		lso.Formatter = formatter
	}

	containers, err := locate.Scan(context.Background(), data, lso)
	if err != nil {
		return report.FileResult{}, err
	}

	return report.FileResult{
		Path:       path,
		ScannedAt:  time.Now(),
		Containers: report.FromContainers(containers, true),
	}, nil
}

// findFiles mirrors the source tool's find_files: walk directories
// recursively, or treat a single file path as a one-element result.
func findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/track"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "Manage the track catalog",
}

var tracksImportCmd = &cobra.Command{
	Use:   "import <file-or-dir>...",
	Short: "Upsert tracks from JSON sidecar files",
	Long: `Reads JSON sidecars: a single track object, a list of them, or
{"tracks": [...]}. A directory imports every *.json file in it. A lone
sidecar without an id takes its file name stem as the track id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTracksImport,
}

var tracksCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of tracks in the catalog",
	RunE:  runTracksCount,
}

var (
	tracksDryRun  bool
	tracksReplace bool
)

func init() {
	rootCmd.AddCommand(tracksCmd)
	tracksCmd.AddCommand(tracksImportCmd, tracksCountCmd)
	tracksImportCmd.Flags().BoolVar(&tracksDryRun, "dry-run", false, "Parse and validate without writing")
	tracksImportCmd.Flags().BoolVar(&tracksReplace, "replace", false, "Remove catalog tracks that are not in the import")
}

func loadSidecars(paths []string) ([]track.Track, error) {
	var out []track.Track
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		var tracks []track.Track
		if info.IsDir() {
			tracks, err = catalog.LoadDir(p)
		} else {
			tracks, err = catalog.LoadFile(p)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tracks...)
	}
	return out, nil
}

func runTracksImport(cmd *cobra.Command, args []string) error {
	tracks, err := loadSidecars(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if tracksDryRun {
		var rows [][]string
		for _, t := range tracks {
			if err := catalog.Validate(t); err != nil {
				rows = append(rows, []string{t.ID, err.Error()})
			}
		}
		if len(rows) > 0 {
			fmt.Fprintln(out, renderTable([]string{"Track", "Problem"}, rows, nil))
		}
		fmt.Fprintf(out, "%d tracks parsed, %d would be rejected\n", len(tracks), len(rows))
		return nil
	}

	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	res, err := l.catalog.Import(cmd.Context(), tracks, catalog.ImportOptions{Replace: tracksReplace})
	if err != nil {
		return err
	}
	if len(res.Rejected) > 0 {
		rows := make([][]string, len(res.Rejected))
		for i, r := range res.Rejected {
			rows[i] = []string{r.ID, r.Reason}
		}
		fmt.Fprintln(out, renderTable([]string{"Rejected", "Reason"}, rows, nil))
	}
	fmt.Fprintf(out, "%d tracks imported, %d removed, %d rejected\n", res.Imported, res.Removed, len(res.Rejected))
	return nil
}

func runTracksCount(cmd *cobra.Command, _ []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	n, err := l.catalog.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

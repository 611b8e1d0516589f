/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/friendsincode/slotsequencer/internal/generation"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a sequence for a channel tier",
	RunE:  runGenerate,
}

var previewSlotCmd = &cobra.Command{
	Use:   "preview-slot",
	Short: "Rank the best candidates for one slot",
	RunE:  runPreviewSlot,
}

var (
	genChannel string
	genTier    string
	genLength  int
	genSlot    int
	genLimit   int
	genJSON    bool
)

func init() {
	rootCmd.AddCommand(generateCmd, previewSlotCmd)
	for _, c := range []*cobra.Command{generateCmd, previewSlotCmd} {
		c.Flags().StringVar(&genChannel, "channel", "", "Channel id (required)")
		c.Flags().StringVar(&genTier, "tier", "", "Energy tier: low, medium, or high (required)")
		c.Flags().BoolVar(&genJSON, "json", false, "Print JSON instead of a table")
		_ = c.MarkFlagRequired("channel")
		_ = c.MarkFlagRequired("tier")
	}
	generateCmd.Flags().IntVarP(&genLength, "length", "n", 0, "Sequence length (default: one pass over the slots)")
	previewSlotCmd.Flags().IntVar(&genSlot, "slot", 1, "Slot index")
	previewSlotCmd.Flags().IntVar(&genLimit, "limit", 0, "Number of candidates (default: configured preview limit)")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	seq, err := l.generator.Generate(cmd.Context(), genChannel, genTier, genLength)
	if err != nil {
		return err
	}
	if genJSON {
		return printJSON(cmd, seq)
	}

	titles, err := l.titles(cmd, seq.TrackIDs)
	if err != nil {
		return err
	}
	rows := make([][]string, len(seq.Placements))
	for i, p := range seq.Placements {
		note := ""
		if p.Reset {
			note = "window reset"
		}
		rows[i] = []string{
			strconv.Itoa(p.Position + 1),
			strconv.Itoa(p.SlotIndex),
			p.TrackID,
			titles[p.TrackID],
			strconv.FormatFloat(p.Score, 'f', 2, 64),
			note,
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Slot", "Track", "Title", "Score", "Note"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "pool %d, requested %d, placed %d", seq.PoolSize, seq.Requested, len(seq.TrackIDs))
	if seq.Capped {
		fmt.Fprint(out, " (capped)")
	}
	if seq.Exhausted() {
		fmt.Fprintf(out, ", shortfall %d", seq.Shortfall)
	}
	fmt.Fprintln(out)
	return nil
}

func (l *local) titles(cmd *cobra.Command, ids []string) (map[string]string, error) {
	tracks, err := l.catalog.All(cmd.Context())
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string]string, len(want))
	for _, t := range tracks {
		if want[t.ID] {
			out[t.ID] = t.Title
		}
	}
	return out, nil
}

func runPreviewSlot(cmd *cobra.Command, _ []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	prev, err := l.generator.PreviewSlot(cmd.Context(), genChannel, genTier, genSlot, genLimit)
	if err != nil {
		return err
	}
	if genJSON {
		return printJSON(cmd, prev)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Rank", "Track", "Title", "Score", "Breakdown"},
		candidateRows(prev.Candidates),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(cmd.OutOrStdout(), "slot %d, pool %d\n", prev.SlotIndex, prev.PoolSize)
	return nil
}

func candidateRows(cands []generation.Candidate) [][]string {
	rows := make([][]string, len(cands))
	for i, c := range cands {
		fields := make([]string, 0, len(c.Breakdown))
		for f := range c.Breakdown {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts := make([]string, len(fields))
		for j, f := range fields {
			parts[j] = f + "=" + strconv.FormatFloat(c.Breakdown[f], 'f', 2, 64)
		}
		rows[i] = []string{
			strconv.Itoa(c.Rank),
			c.TrackID,
			c.Title,
			strconv.FormatFloat(c.Score, 'f', 2, 64),
			strings.Join(parts, " "),
		}
	}
	return rows
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

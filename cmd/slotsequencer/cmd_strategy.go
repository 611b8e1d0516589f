/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Validate, import, export, and list channel strategies",
}

var strategyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a strategy document without storing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategyValidate,
}

var strategyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a strategy document for a channel tier",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategyImport,
}

var strategyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a stored strategy as JSON, YAML, or CSV",
	RunE:  runStrategyExport,
}

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored strategies",
	RunE:  runStrategyList,
}

var (
	strategyChannel string
	strategyTier    string
	strategyFormat  string
	strategyOutput  string
)

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyValidateCmd, strategyImportCmd, strategyExportCmd, strategyListCmd)

	for _, c := range []*cobra.Command{strategyValidateCmd, strategyImportCmd, strategyExportCmd} {
		c.Flags().StringVar(&strategyFormat, "format", "", "Document format: json, yaml, or csv (default: from file extension, json for export)")
	}
	for _, c := range []*cobra.Command{strategyImportCmd, strategyExportCmd} {
		c.Flags().StringVar(&strategyChannel, "channel", "", "Channel id (required)")
		c.Flags().StringVar(&strategyTier, "tier", "", "Energy tier: low, medium, or high (required)")
		_ = c.MarkFlagRequired("channel")
		_ = c.MarkFlagRequired("tier")
	}
	strategyExportCmd.Flags().StringVarP(&strategyOutput, "output", "o", "", "Output file (default: stdout)")
	strategyListCmd.Flags().StringVar(&strategyChannel, "channel", "", "Only list this channel")
}

// runStrategyValidate runs the full check a server write would: schema, then
// the strategy rules themselves.
func runStrategyValidate(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0], strategyFormat)
	if err != nil {
		var se *strategydoc.SchemaError
		if errors.As(err, &se) {
			for _, p := range se.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p)
			}
		}
		return err
	}
	if err := doc.Strategy().Validate(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d slots, %d rule groups, repeat window %d)\n",
		args[0], len(doc.Slots), len(doc.RuleGroups), doc.RecentRepeatWindow)
	return nil
}

func runStrategyImport(cmd *cobra.Command, args []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	doc, err := readDocument(args[0], strategyFormat)
	if err != nil {
		return err
	}
	saved, err := l.store.Put(cmd.Context(), strategyChannel, strategyTier, doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s (%d slots)\n", saved.ChannelID, saved.EnergyTier, len(saved.Slots))
	return nil
}

func runStrategyExport(cmd *cobra.Command, _ []string) error {
	format, err := strategydoc.ParseFormat(strategyFormat)
	if err != nil {
		return err
	}
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	doc, err := l.store.Get(cmd.Context(), strategyChannel, strategyTier)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", strategyChannel, strategyTier, err)
	}
	return writeDocument(cmd, doc, format, strategyOutput)
}

func writeDocument(cmd *cobra.Command, doc strategydoc.Document, format strategydoc.Format, output string) error {
	if output == "" {
		return strategydoc.Encode(cmd.OutOrStdout(), doc, format)
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := strategydoc.Encode(out, doc, format); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "written to %s\n", output)
	return nil
}

func runStrategyList(cmd *cobra.Command, _ []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	list, err := l.store.List(cmd.Context(), strings.TrimSpace(strategyChannel))
	if err != nil {
		return err
	}
	rows := make([][]string, len(list))
	for i, s := range list {
		rows[i] = []string{s.ChannelID, string(s.EnergyTier), strconv.Itoa(s.SchemaVersion), s.UpdatedAt.UTC().Format("2006-01-02 15:04:05")}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Channel", "Tier", "Schema", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

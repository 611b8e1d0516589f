/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "Manage named saved sequences",
}

var sequencesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sequences",
	RunE:  runSequencesList,
}

var sequencesSaveCmd = &cobra.Command{
	Use:   "save <name> <file>",
	Short: "Save a strategy document under a name",
	Args:  cobra.ExactArgs(2),
	RunE:  runSequencesSave,
}

var sequencesExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write a saved sequence as JSON, YAML, or CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runSequencesExport,
}

var sequencesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved sequence",
	Args:  cobra.ExactArgs(1),
	RunE:  runSequencesDelete,
}

var (
	sequencesFormat string
	sequencesOutput string
)

func init() {
	rootCmd.AddCommand(sequencesCmd)
	sequencesCmd.AddCommand(sequencesListCmd, sequencesSaveCmd, sequencesExportCmd, sequencesDeleteCmd)
	sequencesSaveCmd.Flags().StringVar(&sequencesFormat, "format", "", "Document format (default: from file extension)")
	sequencesExportCmd.Flags().StringVar(&sequencesFormat, "format", "json", "Document format: json, yaml, or csv")
	sequencesExportCmd.Flags().StringVarP(&sequencesOutput, "output", "o", "", "Output file (default: stdout)")
}

func runSequencesList(cmd *cobra.Command, _ []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	list, err := l.store.ListSaved(cmd.Context())
	if err != nil {
		return err
	}
	rows := make([][]string, len(list))
	for i, s := range list {
		rows[i] = []string{s.Name, s.UpdatedAt.UTC().Format("2006-01-02 15:04:05")}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Updated"}, rows, nil))
	return nil
}

func runSequencesSave(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[1], sequencesFormat)
	if err != nil {
		return err
	}
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	summary, err := l.store.Save(cmd.Context(), args[0], doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %q\n", summary.Name)
	return nil
}

func runSequencesExport(cmd *cobra.Command, args []string) error {
	format, err := strategydoc.ParseFormat(sequencesFormat)
	if err != nil {
		return err
	}
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	doc, err := l.store.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("%q: %w", args[0], err)
	}
	return writeDocument(cmd, doc, format, sequencesOutput)
}

func runSequencesDelete(cmd *cobra.Command, args []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.store.DeleteSaved(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("%q: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
	return nil
}

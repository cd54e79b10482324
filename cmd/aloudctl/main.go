// Command aloudctl is the maintenance CLI for the aloud interaction store:
// inspecting and correcting past interactions, and running or exporting the
// training-data curation pass.
//
// Exit codes: 0 on success, 1 on usage or validation errors, 2 when the
// store or another external dependency fails.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mkaiser42/aloud/internal/curation"
	"github.com/mkaiser42/aloud/internal/store"
)

var dbPath string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aloudctl: %v\n", err)
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
}

// exitCodeError carries a process exit code alongside the underlying error.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// external marks err as an external-dependency failure (exit code 2).
func external(err error) error { return &exitCodeError{code: 2, err: err} }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aloudctl",
		Short:         "Maintenance CLI for the aloud interaction store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "aloud.db", "path to the SQLite store")
	root.AddCommand(historyCmd())
	root.AddCommand(curationCmd())
	root.AddCommand(factsCmd())
	return root
}

// openStore opens and migrates the SQLite store at the --db path.
func openStore() (*store.Store, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, external(err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, external(err)
	}
	return st, nil
}

// ── history ───────────────────────────────────────────────────────────────────

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and correct past interactions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent interactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.Interactions().ListRecent(cmd.Context(), limit)
			if err != nil {
				return external(err)
			}
			for _, row := range rows {
				printInteractionLine(row)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows to list")

	view := &cobra.Command{
		Use:   "view <id>",
		Short: "Show one interaction in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			row, err := st.Interactions().Get(cmd.Context(), id)
			if err != nil {
				return external(err)
			}
			printInteraction(row)
			return nil
		},
	}

	var response string
	var exclude, include bool
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct the response of an interaction or toggle its profile exclusion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if response == "" && !exclude && !include {
				return errors.New("nothing to do: pass --response, --exclude, or --include")
			}
			if exclude && include {
				return errors.New("--exclude and --include are mutually exclusive")
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()
			repo := st.Interactions()

			if response != "" {
				if err := repo.UpdateCorrection(ctx, id, response); err != nil {
					return external(err)
				}
			}
			if exclude || include {
				if err := repo.SetExcluded(ctx, id, exclude); err != nil {
					return external(err)
				}
			}

			row, err := repo.Get(ctx, id)
			if err != nil {
				return external(err)
			}
			printInteraction(row)
			return nil
		},
	}
	edit.Flags().StringVar(&response, "response", "", "corrected response text")
	edit.Flags().BoolVar(&exclude, "exclude", false, "exclude this interaction from the profile")
	edit.Flags().BoolVar(&include, "include", false, "re-include this interaction in the profile")

	var yes bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all interactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete all interactions without --yes")
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Interactions().Clear(cmd.Context()); err != nil {
				return external(err)
			}
			fmt.Println("history cleared")
			return nil
		},
	}
	clear.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	cmd.AddCommand(list, view, edit, clear)
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid interaction id %q", arg)
	}
	return id, nil
}

func printInteractionLine(row store.Interaction) {
	marker := " "
	if row.CorrectedResponse != "" {
		marker = "*"
	}
	if row.ExcludeFromProfile {
		marker = "x"
	}
	fmt.Printf("%6d %s %s  %q -> %q\n",
		row.ID, marker, row.CreatedAt.Format("2006-01-02 15:04"),
		row.Original, row.FinalResponse())
}

func printInteraction(row *store.Interaction) {
	fmt.Printf("id:            %d\n", row.ID)
	fmt.Printf("created:       %s\n", row.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("transcription: %s\n", row.Original)
	fmt.Printf("response:      %s\n", row.Response)
	if row.CorrectedResponse != "" {
		fmt.Printf("corrected:     %s\n", row.CorrectedResponse)
	}
	if row.Weight != nil {
		fmt.Printf("weight:        %.2f\n", *row.Weight)
	}
	fmt.Printf("excluded:      %v\n", row.ExcludeFromProfile)
	if row.SessionID != "" {
		fmt.Printf("session:       %s\n", row.SessionID)
	}
}

// ── curation ──────────────────────────────────────────────────────────────────

// exportRecord is one JSON line in a curation export. Corrected responses
// take precedence over what the model originally said.
type exportRecord struct {
	Transcription string  `json:"transcription"`
	Response      string  `json:"response"`
	Weight        float64 `json:"weight"`
}

func curationCmd() *cobra.Command {
	var (
		exportPath     string
		limit          int
		correctionBump float64
		repeatScale    float64
		minWeight      float64
		maxWeight      float64
		retentionDays  int
	)
	cmd := &cobra.Command{
		Use:   "curation",
		Short: "Run the curation pass, or export curated training pairs with --export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()

			if exportPath != "" {
				return exportCurated(ctx, st, exportPath, limit)
			}

			curator := curation.New(st.Interactions(), curation.Config{
				MaxRows:                   limit,
				CorrectionBump:            correctionBump,
				RepeatScale:               repeatScale,
				MinWeight:                 minWeight,
				MaxWeight:                 maxWeight,
				ExcludeEmptyTranscription: true,
				DeleteOlderThanDays:       retentionDays,
			}, nil)

			res, err := curator.RunOnce(ctx)
			if err != nil {
				return external(err)
			}
			fmt.Printf("weights updated: %d\nexcluded: %d\ndeleted: %d\n",
				res.WeightsUpdated, res.Excluded, res.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write curated pairs as JSON lines to this file instead of running the pass")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to process or export (0 = store default)")
	cmd.Flags().Float64Var(&correctionBump, "correction-bump", 0.5, "weight bonus for corrected pairs")
	cmd.Flags().Float64Var(&repeatScale, "repeat-scale", 0.1, "per-repeat weight increment")
	cmd.Flags().Float64Var(&minWeight, "min-weight", 0.1, "lower weight clamp")
	cmd.Flags().Float64Var(&maxWeight, "max-weight", 5.0, "upper weight clamp")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "prune interactions older than this many days (0 = keep all)")
	return cmd
}

// exportCurated writes export-eligible interactions as JSON lines, highest
// weight first. Corrected and uncorrected rows are both included; the
// correction wins where one exists.
func exportCurated(ctx context.Context, st *store.Store, path string, limit int) error {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := st.Interactions().EligibleForExport(ctx, limit)
	if err != nil {
		return external(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return external(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range rows {
		weight := 1.0
		if row.Weight != nil {
			weight = *row.Weight
		}
		rec := exportRecord{
			Transcription: row.Original,
			Response:      row.FinalResponse(),
			Weight:        weight,
		}
		if err := enc.Encode(rec); err != nil {
			return external(err)
		}
	}
	fmt.Printf("exported %d pairs to %s\n", len(rows), path)
	return nil
}

// ── facts ─────────────────────────────────────────────────────────────────────

func factsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Manage the training facts the profile builder draws on",
	}

	add := &cobra.Command{
		Use:   "add <text>",
		Short: "Record a fact about the user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.TrainingFacts().Add(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrEmptyFact) {
					return err
				}
				return external(err)
			}
			fmt.Printf("added fact %d\n", id)
			return nil
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded facts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			facts, err := st.TrainingFacts().ListRecent(cmd.Context(), limit)
			if err != nil {
				return external(err)
			}
			for _, fact := range facts {
				fmt.Printf("%6d  %s\n", fact.ID, fact.Text)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum facts to list")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.TrainingFacts().Delete(cmd.Context(), id); err != nil {
				return external(err)
			}
			fmt.Printf("deleted fact %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

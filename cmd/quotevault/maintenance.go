package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotevault/internal/adapters/http/dto"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of every quote, tag and author",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				export, err := rt.services.Quotes.ExportAll(ctx)
				if err != nil {
					return fmt.Errorf("exporting: %w", err)
				}

				if out == "" || out == "-" {
					return writeJSON(cmd.OutOrStdout(), dto.NewExportResponse(export))
				}

				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}

				if err := writeJSON(f, dto.NewExportResponse(export)); err != nil {
					_ = f.Close()
					return err
				}

				rt.logger.Info("export written",
					slog.String("path", out),
					slog.Int("quotes", len(export.Quotes)),
				)

				return f.Close()
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	return cmd
}

func newTagsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Tag maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete every tag that no quote carries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				deleted, err := rt.services.Tags.CleanupUnusedTags(ctx)
				if err != nil {
					return fmt.Errorf("cleaning up tags: %w", err)
				}

				if deleted == nil {
					deleted = []string{}
				}

				return writeJSON(cmd.OutOrStdout(), dto.CleanupResponse{Deleted: deleted})
			})
		},
	})

	return cmd
}

type rebuildResult struct {
	Authors int `json:"authors"`
	Drained int `json:"drained"`
}

func newAuthorsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authors",
		Short: "Author aggregate maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every author aggregate from the stored quotes",
		Long: `rebuild first applies any pending change events, then recomputes every
author aggregate from the entity store and removes aggregates for authors
with no quotes. Do not run it against a store a server is serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				drained, err := rt.dispatcher.Drain(ctx)
				if err != nil {
					return fmt.Errorf("draining pending events: %w", err)
				}

				authors, err := rt.aggregator.Rebuild(ctx)
				if err != nil {
					return fmt.Errorf("rebuilding author aggregates: %w", err)
				}

				return writeJSON(cmd.OutOrStdout(), rebuildResult{Authors: authors, Drained: drained})
			})
		},
	})

	return cmd
}

type deadLetterView struct {
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	QuoteID    string    `json:"quoteId"`
	AuthorKeys []string  `json:"authorKeys,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError"`
	OccurredAt time.Time `json:"occurredAt"`
	FailedAt   time.Time `json:"failedAt"`
}

type redriveResult struct {
	Redriven int `json:"redriven"`
	Drained  int `json:"drained"`
}

func newDeadLettersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and redrive change events the pipeline gave up on",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				letters, err := rt.dispatcher.ListDeadLetters(ctx)
				if err != nil {
					return fmt.Errorf("listing dead letters: %w", err)
				}

				views := make([]deadLetterView, 0, len(letters))
				for _, dl := range letters {
					views = append(views, deadLetterView{
						Seq:        dl.Seq,
						Kind:       string(dl.Event.Kind),
						QuoteID:    dl.Event.QuoteID,
						AuthorKeys: dl.Event.AuthorKeys,
						Attempts:   dl.Attempts,
						LastError:  dl.LastError,
						OccurredAt: dl.Event.OccurredAt,
						FailedAt:   dl.FailedAt,
					})
				}

				return writeJSON(cmd.OutOrStdout(), views)
			})
		},
	})

	var drain bool

	redrive := &cobra.Command{
		Use:   "redrive",
		Short: "Move every dead letter back into the outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				n, err := rt.dispatcher.Redrive(ctx)
				if err != nil {
					return fmt.Errorf("redriving dead letters: %w", err)
				}

				result := redriveResult{Redriven: n}

				if drain {
					if result.Drained, err = rt.dispatcher.Drain(ctx); err != nil {
						return fmt.Errorf("draining redriven events: %w", err)
					}
				}

				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	redrive.Flags().BoolVar(&drain, "drain", false, "process the redriven events now instead of leaving them for a server")
	cmd.AddCommand(redrive)

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

package main

import (
	"fmt"
	"image"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lostboard/vismatch/board"
	"github.com/lostboard/vismatch/distance"
	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/sharelink"
)

func newWarmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Load the feature network and report how long it took",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
			start := time.Now()
			err := a.matcher.EnsureModelReady(cmd.Context())
			d := time.Since(start)
			if err != nil {
				return err
			}
			out := newOutputFormatter(cmd)
			return out.Print(map[string]any{
				"state":    a.matcher.ModelState().String(),
				"duration": d.String(),
			}, func() string {
				return fmt.Sprintf("model %s in %s", a.matcher.ModelState(), d.Round(time.Millisecond))
			})
		}),
	}
}

func newEmbedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed <url-or-file>",
		Short: "Print the embedding of a photo",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
			var (
				emb embedding.Embedding
				err error
			)
			if info, statErr := os.Stat(args[0]); statErr == nil && !info.IsDir() {
				emb, err = embedFile(cmd, a, args[0])
			} else {
				emb, err = a.matcher.ExtractEmbedding(cmd.Context(), sharelink.Normalize(args[0]))
			}
			if err != nil {
				return err
			}

			full, _ := cmd.Flags().GetBool("full")
			out := newOutputFormatter(cmd)
			if full {
				return out.Print(emb, nil)
			}
			return out.Print(map[string]any{
				"dim":  emb.Dim(),
				"norm": distance.Norm(emb),
			}, func() string {
				return fmt.Sprintf("dim=%d norm=%.4f", emb.Dim(), distance.Norm(emb))
			})
		}),
	}
	cmd.Flags().Bool("full", false, "Print every component")
	return cmd
}

func embedFile(cmd *cobra.Command, a *app, path string) (embedding.Embedding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return a.matcher.ExtractImage(cmd.Context(), img)
}

func newScoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "score <url-a> <url-b>",
		Short: "Compare two photos",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if err := a.matcher.EnsureModelReady(ctx); err != nil {
				return err
			}

			embs := make([]embedding.Embedding, 2)
			g, gctx := errgroup.WithContext(ctx)
			for i, u := range args {
				g.Go(func() error {
					e, err := a.matcher.ExtractEmbedding(gctx, sharelink.Normalize(u))
					embs[i] = e
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			s, err := a.matcher.ScoreSimilarity(embs[0], embs[1])
			if err != nil {
				return err
			}
			return newOutputFormatter(cmd).Print(map[string]int{"similarity": s}, func() string {
				return fmt.Sprintf("similarity: %d%%", s)
			})
		}),
	}
}

func newPostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a lost or found item",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(cmd *cobra.Command, a *app, _ []string) error {
			flags := cmd.Flags()
			typ, _ := flags.GetString("type")
			t, err := item.ParseType(typ)
			if err != nil {
				return err
			}
			req := board.PostRequest{Type: t}
			req.Title, _ = flags.GetString("title")
			req.Description, _ = flags.GetString("description")
			req.Category, _ = flags.GetString("category")
			req.Station, _ = flags.GetString("station")
			req.TrainNumber, _ = flags.GetString("train")
			req.Date, _ = flags.GetString("date")
			req.PhotoURL, _ = flags.GetString("photo")
			req.PostedBy, _ = flags.GetString("by")

			res, err := a.board.Post(cmd.Context(), req)
			if err != nil {
				return err
			}
			return newOutputFormatter(cmd).Print(res, func() string {
				if !res.Analyzed {
					return fmt.Sprintf("posted %s (warning: %s)", res.Item.ID, res.Warning)
				}
				return fmt.Sprintf("posted %s", res.Item.ID)
			})
		}),
	}
	f := cmd.Flags()
	f.String("type", "", "Lost or Found")
	f.String("title", "", "Short title")
	f.String("description", "", "Longer description")
	f.String("category", "", "Category, e.g. Electronics")
	f.String("station", "", "Station where the item was lost or found")
	f.String("train", "", "Train number")
	f.String("date", "", "Date, e.g. 2025-06-01")
	f.String("photo", "", "Photo link (share links are normalized)")
	f.String("by", "", "Poster identifier")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("photo")
	return cmd
}

func newViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <item-id>",
		Short: "Show an item and its visual matches",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(cmd *cobra.Command, a *app, args []string) error {
			var opts []ranker.Option
			if cmd.Flags().Changed("limit") {
				n, _ := cmd.Flags().GetInt("limit")
				opts = append(opts, ranker.WithLimit(n))
			}
			if cmd.Flags().Changed("threshold") {
				n, _ := cmd.Flags().GetInt("threshold")
				opts = append(opts, ranker.WithThreshold(n))
			}

			v, err := a.board.View(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			return newOutputFormatter(cmd).Print(newMatchesResponse(v), func() string {
				return formatView(v)
			})
		}),
	}
	cmd.Flags().Int("limit", ranker.DefaultLimit, "Maximum number of matches")
	cmd.Flags().Int("threshold", ranker.DefaultThreshold, "Minimum similarity (exclusive)")
	return cmd
}

func formatView(v board.ViewResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s at %s\n", v.Item.ID, v.Item.Type, v.Item.Title, v.Item.Station)
	fmt.Fprintf(&b, "matches: %s\n", v.Outcome.State)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, m := range v.Outcome.Matches {
		fmt.Fprintf(tw, "  %d%%\t%s\t%s\t%s\n", m.Similarity, m.ID, m.Title, m.Station)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func newReanalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <item-id>",
		Short: "Extract the embedding of an item posted without one",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(cmd *cobra.Command, a *app, args []string) error {
			rec, err := a.board.Reanalyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newOutputFormatter(cmd).Print(rec, func() string {
				return fmt.Sprintf("%s analyzed (dim=%d)", rec.ID, rec.Embedding.Dim())
			})
		}),
	}
}

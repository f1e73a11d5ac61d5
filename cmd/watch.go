package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"comment-map/client"
	"comment-map/config"
	"comment-map/projector"
)

func watch(cfg *config.Config) *cobra.Command {
	var width, height float64
	cmd := &cobra.Command{
		Use:   "watch <video url or id>",
		Short: "submit a video, wait for the analysis and print its opinion map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			ctx, cancel := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt)
			defer cancel()

			api := client.NewAPIClient(cfg.Client.APIURL, 0)
			jobId, err := api.Analyze(ctx, args[0])
			if err != nil {
				return err
			}
			logger.Info().Str("job_id", jobId.String()).Msg("submitted")

			view := client.NewMapView(api, cfg.Client.PollInterval, projector.Size{Width: width, Height: height})
			defer view.Close()

			done := make(chan client.Outcome, 1)
			view.Watch(ctx, jobId, func(o client.Outcome) { done <- o })

			select {
			case <-ctx.Done():
				return ctx.Err()
			case o := <-done:
				switch o.Phase {
				case client.PhaseDone:
					printMap(cmd.OutOrStdout(), view)
					return nil
				default:
					return fmt.Errorf("%s", o.Message)
				}
			}
		},
	}
	cmd.Flags().Float64Var(&width, "width", 800, "map viewport width in pixels")
	cmd.Flags().Float64Var(&height, "height", 600, "map viewport height in pixels")
	return cmd
}

func printMap(w io.Writer, view *client.MapView) {
	video := view.Video()
	title := video.SourceKey
	if video.Title != nil {
		title = *video.Title
	}
	fmt.Fprintf(w, "%s\n", title)
	if video.OverallSummary != nil {
		fmt.Fprintf(w, "\n%s\n", *video.OverallSummary)
	}

	fmt.Fprintln(w, "\nstance:")
	for _, s := range view.Breakdown() {
		fmt.Fprintf(w, "  %-8s %5.1f%%  (%d comments)\n", s.Stance, s.Share, s.Size)
	}

	markers := view.Markers()
	byId := make(map[string]client.Marker, len(markers))
	for _, m := range markers {
		byId[m.ClusterId.String()] = m
	}
	fmt.Fprintln(w, "\nclusters:")
	for _, c := range view.Ranked() {
		m := byId[c.Id.String()]
		fmt.Fprintf(w, "  %4d  %-40s at (%.0f, %.0f) r=%.1f %s\n", c.Size, c.Label, m.Center.X, m.Center.Y, m.Radius, m.Color)
	}
}

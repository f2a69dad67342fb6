package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/ArrinPaul/Campus-Connect-sub003/codec"
	"github.com/ArrinPaul/Campus-Connect-sub003/idempotency"
	"github.com/spf13/cobra"
)

type demoOptions struct {
	posts  int
	format string
}

type demoReport struct {
	Metrics       eventbus.Metrics    `json:"metrics"`
	Subscriptions map[string]int      `json:"subscriptions"`
	DeadLetters   []codec.DeadLetter  `json:"deadLetters"`
	Notifications int                 `json:"notifications"`
	Badges        map[string][]string `json:"badges"`
	Invalidated   []string            `json:"invalidated"`
	Sum           int                 `json:"sum"`
}

// NewDemoCommand creates the demo command
func NewDemoCommand(root *rootOptions) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Publish a scripted campus workload and print the bus state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			c, ok := codec.ByName(opts.format)
			if !ok {
				return fmt.Errorf("unknown format %q", opts.format)
			}

			report, err := runDemo(cmd.Context(), cfg, logger, opts.posts)
			if err != nil {
				return err
			}
			data, err := c.Marshal(report)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}

	cmd.Flags().IntVar(&opts.posts, "posts", 3, "number of posts to publish")
	cmd.Flags().StringVar(&opts.format, "format", "json", "output codec: json or msgpack")

	return cmd
}

var demoAuthors = []string{"ada", "grace", "linus"}

func runDemo(ctx context.Context, cfg eventbus.Config, logger *slog.Logger, posts int) (*demoReport, error) {
	bus, err := eventbus.NewFromConfig(cfg, eventbus.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	store := idempotency.NewMemoryStore(time.Hour)
	defer store.Close()

	campus, err := WireCampus(bus, store, logger)
	if err != nil {
		return nil, err
	}
	defer campus.Close()

	for i := range posts {
		author := demoAuthors[i%len(demoAuthors)]
		err := bus.Publish(ctx, eventbus.Envelope{
			Type:   EventPostCreated,
			Source: "feed",
			Payload: PostCreated{
				PostID:      fmt.Sprintf("post-%d", i+1),
				AuthorID:    author,
				FollowerIDs: []string{"student-1", "student-2"},
				Body:        "hello campus",
			},
		})
		if err != nil {
			return nil, err
		}
	}

	// A notification without a recipient is rejected into the dead-letter queue.
	if err := bus.Publish(ctx, eventbus.Envelope{
		Type:    EventNotificationSend,
		Source:  "demo",
		Payload: Notification{Message: "orphaned"},
	}); err != nil {
		return nil, err
	}

	sum, err := eventbus.RequestAs[AddResult](ctx, bus, eventbus.Envelope{
		Type:    EventMathAdd,
		Source:  "demo",
		Payload: AddRequest{A: 2, B: 3},
	})
	if err != nil {
		return nil, fmt.Errorf("math.add: %w", err)
	}

	badges := make(map[string][]string)
	for _, author := range demoAuthors {
		if b := campus.Badges(author); len(b) > 0 {
			badges[author] = b
		}
	}

	return &demoReport{
		Metrics:       bus.Metrics(),
		Subscriptions: bus.Subscriptions(),
		DeadLetters:   codec.DeadLettersToWire(bus.DeadLetterQueue()),
		Notifications: len(campus.Notifications()),
		Badges:        badges,
		Invalidated:   campus.InvalidatedKeys(),
		Sum:           sum.Result,
	}, nil
}

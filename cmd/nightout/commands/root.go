package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"nightout/lib/configutil"
	"nightout/lib/scrapers/restaurant"
	"nightout/lib/telemetry"
	"nightout/services/planner"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type config struct {
	Credentials       restaurant.Credentials `json:"credentials"`
	DinnerBufferHours int                    `json:"dinner_buffer_hours"`
}

var (
	flagBook  bool
	flagDebug bool
)

func init() {
	rootCmd.Flags().BoolVar(&flagBook, "book", false, "book the table of the first plan found")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "nightout <seed-url>",
	Short: "nightout finds a day, movie and dinner reservation that work for everyone.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if flagDebug {
			telemetry.InitSlog(true)
		}

		seed := args[0]
		if err := validateSeedUrl(seed); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		creds, policy, err := loadConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		svc := planner.NewService(creds, policy)

		result, err := svc.FindPlans(cmd.Context(), seed)
		switch {
		case errors.Is(err, planner.ErrNoCommonDay):
			fmt.Println("==== There was no available day where all of you could meet! ====")
			os.Exit(1)
		case errors.Is(err, planner.ErrNoPlanFound):
			fmt.Println("==== There was no available match for both a movie and dinner! ====")
			os.Exit(1)
		case err != nil:
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		renderPlans(result.Plans)

		if flagBook {
			plan := result.Plans[0]
			err := svc.Book(cmd.Context(), result.RestaurantUrl, plan)
			if errors.Is(err, restaurant.ErrBookingFailed) {
				fmt.Printf("Could not book the %s table on %s, try booking manually.\n",
					plan.DinnerWindow, plan.Day)
				os.Exit(1)
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("Booked the %s table on %s.\n", plan.DinnerWindow, plan.Day)
		}
	},
}

func validateSeedUrl(seed string) error {
	parsed, err := url.Parse(seed)
	if err != nil {
		return fmt.Errorf("not a URL: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("not a URL: %q", seed)
	}
	return nil
}

func loadConfig() (restaurant.Credentials, planner.Policy, error) {
	// the demo credentials the restaurant site ships with
	creds := restaurant.Credentials{Username: "zeke", Password: "coys"}
	policy := planner.DefaultPolicy()

	c, err := configutil.ReadRecursively[config]("nightout.json5")
	if errors.Is(err, os.ErrNotExist) {
		return creds, policy, nil
	}
	if err != nil {
		// a broken config must not silently fall back to the defaults
		return creds, policy, fmt.Errorf("read nightout.json5: %w", err)
	}
	if c.Credentials.Username != "" {
		creds = c.Credentials
	}
	if c.DinnerBufferHours > 0 {
		policy.DinnerBufferHours = c.DinnerBufferHours
	}
	return creds, policy, nil
}

func renderPlans(plans []planner.Plan) {
	fmt.Println("\nSuggestions")

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Day", "Movie", "Starts", "Dinner"})

	for _, p := range plans {
		t.AppendRow(table.Row{p.Day, p.Movie, p.MovieStart.String(), p.DinnerWindow.String()})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

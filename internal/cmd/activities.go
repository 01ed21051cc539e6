package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/stats"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/spf13/cobra"
)

var (
	logSport    string
	logDate     string
	logDistance float64
	logKm       float64
	logMinutes  float64
	logTitle    string
	logNotes    string
	logTrace    string

	listLimit int
	listSport string

	summaryDate   string
	summaryLocale string

	recommendSport    string
	recommendLookback int

	jsonOutput bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record a sport session",
	Example: `  sportlog log --sport running --km 10 --minutes 55 --title "Morning run"
  sportlog log --sport swimming --meters 1500 --minutes 32 --date 2024-01-15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logDistance != 0 && logKm != 0 {
			return fmt.Errorf("set either --meters or --km, not both")
		}
		meters := logDistance
		if logKm != 0 {
			meters = logKm * 1000
		}

		day := activity.DayOf(time.Now())
		if logDate != "" {
			if _, ok := activity.ParseDay(logDate); !ok {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", logDate)
			}
			day = activity.DayFromString(logDate)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := st.CreateActivity(ctx, activity.Activity{
			UserID:         cfg.User,
			Date:           day,
			Sport:          activity.SportType(logSport),
			DistanceMeters: meters,
			Duration:       time.Duration(logMinutes * float64(time.Minute)),
			Title:          logTitle,
			Description:    logNotes,
			Trace:          logTrace,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged %s %s on %s (%s)\n",
			created.Sport, formatMeters(created.DistanceMeters), created.Date, created.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged activities, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sport activity.SportType
		if listSport != "" {
			parsed, err := activity.ParseSportType(listSport)
			if err != nil {
				return err
			}
			sport = parsed
		}

		activities, err := loadActivities(cmd.Context())
		if err != nil {
			return err
		}

		var shown []activity.Activity
		for _, a := range activities {
			if sport != "" {
				if got, ok := a.Sport.Normalize(); !ok || got != sport {
					continue
				}
			}
			if listLimit > 0 && len(shown) == listLimit {
				break
			}
			shown = append(shown, a)
		}

		if jsonOutput {
			if shown == nil {
				shown = []activity.Activity{}
			}
			return writeJSON(cmd.OutOrStdout(), shown)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tSPORT\tDISTANCE\tDURATION\tPACE\tTITLE\tID")
		for _, a := range shown {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.Date, a.Sport, formatMeters(a.SafeDistance()),
				stats.FormatDuration(a.SafeMinutes()), formatPace(a), a.Title, a.ID)
		}
		return w.Flush()
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the weekly summary of the week containing --date (default: today)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := time.Now()
		if summaryDate != "" {
			t, ok := activity.ParseDay(summaryDate)
			if !ok {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", summaryDate)
			}
			ref = t
		}
		locale := cfg.Locale
		if summaryLocale != "" {
			locale = summaryLocale
		}

		activities, err := loadActivities(cmd.Context())
		if err != nil {
			return err
		}

		summary, err := stats.Summarize(activities, ref, stats.WithLocale(locale))
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), summary)
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend the distance of the next session of a sport",
	RunE: func(cmd *cobra.Command, args []string) error {
		sport, err := activity.ParseSportType(recommendSport)
		if err != nil {
			return err
		}
		lookback := recommendLookback
		if lookback <= 0 {
			lookback = cfg.Lookback
		}

		activities, err := loadActivities(cmd.Context())
		if err != nil {
			return err
		}

		rec, err := stats.Recommend(activities, sport, lookback)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), rec)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Next %s session: %s\n", rec.Sport, formatMeters(rec.DistanceMeters))
		if rec.BasedOn == 0 {
			fmt.Fprintln(out, "No history yet, starting with the default distance.")
			return nil
		}
		fmt.Fprintf(out, "Based on %d sessions averaging %s (trend %+.0f%%, x%.2f)\n",
			rec.BasedOn, formatMeters(rec.AverageMeters), rec.Trend*100, rec.Coefficient)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a logged activity of the current user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		a, err := st.GetActivity(ctx, args[0])
		if err != nil {
			return err
		}
		if a.UserID != cfg.User {
			return fmt.Errorf("activity %s: %w", args[0], store.ErrNotFound)
		}
		if err := st.DeleteActivity(ctx, a.ID); err != nil {
			return err
		}

		left, err := st.CountActivities(ctx, cfg.User)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s on %s, %d activities left\n",
			a.Sport, formatMeters(a.SafeDistance()), a.Date, left)
		return nil
	},
}

func init() {
	logCmd.Flags().StringVarP(&logSport, "sport", "s", "", "sport: running, cycling or swimming")
	logCmd.Flags().StringVarP(&logDate, "date", "d", "", "day of the session, YYYY-MM-DD (default: today)")
	logCmd.Flags().Float64Var(&logDistance, "meters", 0, "distance in meters")
	logCmd.Flags().Float64Var(&logKm, "km", 0, "distance in kilometers")
	logCmd.Flags().Float64VarP(&logMinutes, "minutes", "m", 0, "duration in minutes")
	logCmd.Flags().StringVarP(&logTitle, "title", "t", "", "short name of the session")
	logCmd.Flags().StringVar(&logNotes, "description", "", "free-form notes")
	logCmd.Flags().StringVar(&logTrace, "trace", "", "reference to a GPS track, stored as-is")
	_ = logCmd.MarkFlagRequired("sport")

	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of activities to show (0 for all)")
	listCmd.Flags().StringVarP(&listSport, "sport", "s", "", "only show this sport")

	summaryCmd.Flags().StringVarP(&summaryDate, "date", "d", "", "any day of the week to summarize, YYYY-MM-DD")
	summaryCmd.Flags().StringVar(&summaryLocale, "locale", "", "language of the day labels: en or fr")

	recommendCmd.Flags().StringVarP(&recommendSport, "sport", "s", "", "sport: running, cycling or swimming")
	recommendCmd.Flags().IntVar(&recommendLookback, "lookback", 0, "number of recent sessions to consider (default from config)")
	_ = recommendCmd.MarkFlagRequired("sport")

	for _, c := range []*cobra.Command{logCmd, listCmd, summaryCmd, recommendCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(deleteCmd)
}

func loadActivities(ctx context.Context) ([]activity.Activity, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ListActivities(ctx, cfg.User)
}

func printSummary(out io.Writer, s stats.Summary) {
	fmt.Fprintf(out, "Week %s (%s to %s)\n", s.Week,
		s.Window.Start.Format(activity.DateLayout), s.Window.End.Format(activity.DateLayout))
	fmt.Fprintf(out, "Activities: %d\nDistance:   %.2f km\nDuration:   %s\n",
		s.ActivityCount, s.TotalDistanceKm, s.TotalDuration)

	if len(s.SportDistances) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SPORT\tDISTANCE\tAVG")
		for _, sd := range s.SportDistances {
			avg := ""
			if v, ok := s.SpeedBySport[sd.Sport]; ok {
				avg = fmt.Sprintf("%.2f %s", v, sd.Unit)
			}
			fmt.Fprintf(w, "%s\t%.2f km\t%s\n", sd.Sport, sd.DistanceKm, avg)
		}
		w.Flush()
	}

	fmt.Fprintln(out)
	for _, d := range s.Daily {
		fmt.Fprintf(out, "%s %s  %s\n", d.Label, d.Date, stats.FormatDuration(d.Minutes))
	}
	if s.Malformed > 0 {
		fmt.Fprintf(out, "\n%d activities skipped: unreadable date\n", s.Malformed)
	}
}

func formatMeters(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.2f km", meters/1000)
	}
	return fmt.Sprintf("%.0f m", meters)
}

func formatPace(a activity.Activity) string {
	v := activity.Speed(a)
	if v <= 0 {
		return "-"
	}
	sport, _ := a.Sport.Normalize()
	return fmt.Sprintf("%.2f %s", v, sport.Unit())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

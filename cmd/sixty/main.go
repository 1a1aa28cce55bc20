package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"sixty/internal/app"
	"sixty/internal/assistant"
	"sixty/internal/config"
	"sixty/internal/curriculum"
	"sixty/internal/db"
	"sixty/internal/domain"
	"sixty/internal/progress"
	"sixty/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sixty",
	Short: "Sixty: a 60-day web development roadmap tracker",
	Long: `Sixty tracks a learner through a fixed 60-day curriculum.
- Days: finalize a day to advance; the current day is the day after the highest finalized one.
- Tasks: each day has a short checklist; ticking tasks never finalizes a day on its own.
- Streak: counts consecutive calendar days the tracker was opened.
- Habits: a daily routine checklist, charted over the last 14 days.
- Projects: portfolio builds that unlock as you progress; attach repo and deploy links.
- Advisor: ask questions about today's topic (needs GEMINI_API_KEY).
- Event log: every change is journaled, view with 'sixty log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SIXTY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	rootCmd.PersistentFlags().String("today", "", "override the calendar date (YYYY-MM-DD)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("today", rootCmd.PersistentFlags().Lookup("today"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(roadmapCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(habitCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(imageCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(themeCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(speakCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// clock honours --today / SIXTY_TODAY. It returns nil for the real clock.
func clock(raw string) (func() time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --today %q: want YYYY-MM-DD", raw)
	}
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.Local)
	return func() time.Time { return t }, nil
}

func withSession(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	logger, err := newLogger(viper.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer logger.Sync()
	now, err := clock(viper.GetString("today"))
	if err != nil {
		return err
	}
	s, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Logger:    logger,
		Now:       now,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create sixty.yml and the workspace state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path, err := config.WriteDefault(workspace, name)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "learner name")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect sixty.yml"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := app.LoadEnv(workspace); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate sixty.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				msg := ""
				if err != nil {
					msg = err.Error()
				}
				return printJSON(map[string]any{"ok": err == nil, "error": msg})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Dashboard for the current day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				d := s.Engine.Dashboard()
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Day %d/%d  %s: %s\n", d.CurrentDay, curriculum.TotalDays, d.Day.Phase.Label(), d.Day.Title)
				fmt.Printf("Goal: %s\n", d.Day.Goal)
				fmt.Printf("Progress: %d%% (%d days)  Streak: %d  Routine today: %d%%\n",
					d.ProgressPercent, d.CompletedDays, d.Streak, d.TodayScore)
				fmt.Printf("Tasks %d/%d:\n", d.TasksDone, len(d.Tasks))
				for _, t := range d.Tasks {
					fmt.Printf("  %s %d. %s\n", checkbox(t.Done), t.Index, t.Label)
				}
				if d.DayCompleted {
					fmt.Println("Day finalized.")
				}
				fmt.Println("Skills:")
				for _, sk := range d.Skills {
					fmt.Printf("  %-16s %s %3d%%\n", sk.Name, bar(sk.Percent, 20), sk.Percent)
				}
				return nil
			})
		},
	}
}

func roadmapCmd() *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "All 60 days with completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter curriculum.Phase
			if phase != "" {
				p, err := curriculum.ParsePhase(phase)
				if err != nil {
					return err
				}
				filter = p
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				st := s.Engine.State()
				current := progress.CurrentDay(st.CompletedDays)
				var days []curriculum.DayInfo
				for _, d := range s.Engine.Catalog.Days() {
					if filter == "" || d.Phase == filter {
						days = append(days, d)
					}
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Phase", "Title", "Tasks", "Status"})
				for _, d := range days {
					status := ""
					switch {
					case st.CompletedDays.Contains(d.Number):
						status = "done"
					case d.Number == current:
						status = "current"
					}
					tw.AppendRow(table.Row{d.Number, d.Phase.Label(), d.Title, fmt.Sprintf("%d/%d", progress.TasksDone(st, d.Number), len(d.Tasks)), status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "only days of this phase (HTML_CSS, JAVASCRIPT, REACT, BACKEND)")
	return cmd
}

func parseDay(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !domain.ValidDay(n) {
		return 0, fmt.Errorf("invalid day %q: want 1-%d", raw, curriculum.TotalDays)
	}
	return n, nil
}

func parseIndex(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return n, nil
}

// dayArg returns the day in args[0], or the current day when absent.
func dayArg(s *app.Session, args []string) (int, error) {
	if len(args) == 0 {
		return s.Engine.CurrentDay(), nil
	}
	return parseDay(args[0])
}

func dayCmd() *cobra.Command {
	day := &cobra.Command{Use: "day", Short: "Work with a single day"}
	day.AddCommand(dayShowCmd())
	day.AddCommand(dayCompleteCmd())
	task := &cobra.Command{Use: "task", Short: "Day checklist"}
	task.AddCommand(dayTaskToggleCmd())
	day.AddCommand(task)
	return day
}

func dayShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [DAY]",
		Short: "Show a day (default: current day)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				n, err := dayArg(s, args)
				if err != nil {
					return err
				}
				info, _ := s.Engine.Catalog.Day(n)
				st := s.Engine.State()
				tasks := progress.TaskStates(st, s.Engine.Catalog, n)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"day":       info,
						"completed": st.CompletedDays.Contains(n),
						"tasks":     tasks,
						"note":      st.DayNotes[n],
						"images":    len(st.DayNotesImages[n]),
					})
				}
				fmt.Printf("Day %d  %s: %s\n", info.Number, info.Phase.Label(), info.Title)
				fmt.Printf("Goal: %s\n", info.Goal)
				for _, t := range tasks {
					fmt.Printf("  %s %d. %s\n", checkbox(t.Done), t.Index, t.Label)
				}
				if st.CompletedDays.Contains(n) {
					fmt.Println("Finalized.")
				}
				if note := st.DayNotes[n]; note != "" {
					fmt.Printf("Note:\n%s\n", note)
				}
				if k := len(st.DayNotesImages[n]); k > 0 {
					fmt.Printf("Images: %d\n", k)
				}
				return nil
			})
		},
	}
}

func dayCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete [DAY]",
		Short: "Finalize a day (default: current day)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				n, err := dayArg(s, args)
				if err != nil {
					return err
				}
				st, err := s.Engine.CompleteDay(ctx, n)
				if err != nil {
					return err
				}
				next := progress.CurrentDay(st.CompletedDays)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"completed": n, "current_day": next, "progress_percent": progress.ProgressPercent(st)})
				}
				fmt.Printf("Day %d finalized. Current day: %d (%d%%)\n", n, next, progress.ProgressPercent(st))
				return nil
			})
		},
	}
}

func dayTaskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle DAY INDEX",
		Short: "Flip one checklist item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				st, err := s.Engine.ToggleDayTask(ctx, n, idx)
				if err != nil {
					return err
				}
				tasks := progress.TaskStates(st, s.Engine.Catalog, n)
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				t := tasks[idx]
				fmt.Printf("%s %d. %s\n", checkbox(t.Done), t.Index, t.Label)
				return nil
			})
		},
	}
}

// dateFlag resolves --date against the session clock.
func dateFlag(s *app.Session, raw string) (domain.Date, error) {
	if raw == "" || raw == "today" {
		return s.Engine.Today(), nil
	}
	return domain.ParseDate(raw)
}

func habitCmd() *cobra.Command {
	habit := &cobra.Command{Use: "habit", Short: "Daily routine"}
	habit.AddCommand(habitListCmd())
	habit.AddCommand(habitToggleCmd())
	habit.AddCommand(habitChartCmd())
	return habit
}

func habitListCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Habits for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				d, err := dateFlag(s, date)
				if err != nil {
					return err
				}
				return printHabits(s, s.Engine.State(), d)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, default today)")
	return cmd
}

func habitToggleCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "toggle HABIT",
		Short: "Flip a habit for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				d, err := dateFlag(s, date)
				if err != nil {
					return err
				}
				var st domain.ProgressState
				if date == "" || date == "today" {
					st, err = s.Engine.ToggleHabitToday(ctx, args[0])
				} else {
					st, err = s.Engine.ToggleHabit(ctx, d, args[0])
				}
				if err != nil {
					return err
				}
				return printHabits(s, st, d)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, default today)")
	return cmd
}

func printHabits(s *app.Session, st domain.ProgressState, d domain.Date) error {
	type row struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Done  bool   `json:"done"`
	}
	var rows []row
	for _, h := range s.Engine.Catalog.Habits() {
		rows = append(rows, row{ID: h.ID, Label: h.Label, Done: st.DailyRoutine[domain.RoutineKey{Date: d, HabitID: h.ID}]})
	}
	score := progress.RoutineScore(st, s.Engine.Catalog, d)
	if viper.GetBool("json") {
		return printJSON(map[string]any{"date": d.String(), "score": score, "habits": rows})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(fmt.Sprintf("%s  routine %d%%", d, score))
	tw.AppendHeader(table.Row{"", "ID", "Habit"})
	for _, r := range rows {
		tw.AppendRow(table.Row{checkbox(r.Done), r.ID, r.Label})
	}
	tw.Render()
	return nil
}

func habitChartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chart",
		Short: "Routine score over the last 14 days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				points := progress.ActivitySeries(s.Engine.State(), s.Engine.Catalog, s.Engine.Today())
				if viper.GetBool("json") {
					return printJSON(points)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Day", "Score", ""})
				for _, p := range points {
					tw.AppendRow(table.Row{p.Date.String(), p.Label, fmt.Sprintf("%d%%", p.Score), bar(p.Score, 20)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "Per-day notes"}
	note.AddCommand(&cobra.Command{
		Use:   "set DAY TEXT...",
		Short: "Replace a day's note (empty text clears it)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if _, err := s.Engine.SetNote(ctx, n, text); err != nil {
					return err
				}
				if text == "" {
					fmt.Printf("note for day %d cleared\n", n)
				} else {
					fmt.Printf("note for day %d saved\n", n)
				}
				return nil
			})
		},
	})
	note.AddCommand(&cobra.Command{
		Use:   "show DAY",
		Short: "Print a day's note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				note := s.Engine.State().DayNotes[n]
				if viper.GetBool("json") {
					return printJSON(map[string]any{"day": n, "note": note})
				}
				fmt.Println(note)
				return nil
			})
		},
	})
	return note
}

func imageCmd() *cobra.Command {
	img := &cobra.Command{Use: "image", Short: "Images attached to a day's notes"}
	img.AddCommand(&cobra.Command{
		Use:   "add DAY FILE...",
		Short: "Attach image files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				for _, path := range args[1:] {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					st, err := s.Engine.AddImage(ctx, n, data)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Printf("attached %s as image %d of day %d\n", filepath.Base(path), len(st.DayNotesImages[n])-1, n)
				}
				return nil
			})
		},
	})
	img.AddCommand(&cobra.Command{
		Use:   "rm DAY INDEX",
		Short: "Detach an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				st, err := s.Engine.RemoveImage(ctx, n, idx)
				if err != nil {
					return err
				}
				fmt.Printf("day %d has %d image(s)\n", n, len(st.DayNotesImages[n]))
				return nil
			})
		},
	})
	img.AddCommand(&cobra.Command{
		Use:   "ls DAY",
		Short: "List a day's images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				type row struct {
					Index int    `json:"index"`
					Type  string `json:"type"`
					Bytes int    `json:"bytes"`
				}
				var rows []row
				for i, b := range s.Engine.State().DayNotesImages[n] {
					rows = append(rows, row{Index: i, Type: http.DetectContentType(b), Bytes: len(b)})
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Index", "Type", "Bytes"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.Index, r.Type, r.Bytes})
				}
				tw.Render()
				return nil
			})
		},
	})
	img.AddCommand(&cobra.Command{
		Use:   "export DAY INDEX FILE",
		Short: "Write an image to a file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseDay(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				imgs := s.Engine.State().DayNotesImages[n]
				if idx >= len(imgs) {
					return fmt.Errorf("day %d has no image %d", n, idx)
				}
				return os.WriteFile(args[2], imgs[idx], 0o644)
			})
		},
	})
	return img
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Portfolio projects"}
	prj.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Projects with lock state and links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				items := progress.Projects(s.Engine.State(), s.Engine.Catalog)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Phase", "Unlocks", "Repo", "Deploy"})
				for _, p := range items {
					unlock := fmt.Sprintf("day %d", p.RequiredDay)
					if p.Unlocked {
						unlock = "unlocked"
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Phase.Label(), unlock, p.ProjectURL, p.DeployURL})
				}
				tw.Render()
				return nil
			})
		},
	})
	var deploy bool
	setURL := &cobra.Command{
		Use:   "set-url ID URL",
		Short: "Set a project's repository link (or deploy link with --deploy)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 2 {
				url = strings.TrimSpace(args[1])
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				var err error
				if deploy {
					_, err = s.Engine.SetDeployURL(ctx, args[0], url)
				} else {
					_, err = s.Engine.SetProjectURL(ctx, args[0], url)
				}
				if err != nil {
					return err
				}
				fmt.Printf("project %s updated\n", args[0])
				return nil
			})
		},
	}
	setURL.Flags().BoolVar(&deploy, "deploy", false, "set the deployment link")
	prj.AddCommand(setURL)
	return prj
}

func themeCmd() *cobra.Command {
	theme := &cobra.Command{Use: "theme", Short: "Display preference"}
	theme.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Switch between dark and light",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				st, err := s.Engine.ToggleTheme(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("theme: %s\n", st.Theme)
				return nil
			})
		},
	})
	theme.AddCommand(&cobra.Command{
		Use:   "set dark|light",
		Short: "Pick a theme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				st, err := s.Engine.SetTheme(ctx, domain.Theme(strings.ToLower(args[0])))
				if err != nil {
					return err
				}
				fmt.Printf("theme: %s\n", st.Theme)
				return nil
			})
		},
	})
	return theme
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset discards all progress; pass --yes to confirm")
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if err := s.Engine.Reset(ctx); err != nil {
					return err
				}
				fmt.Println("progress reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask TEXT...",
		Short: "Ask the advisor about today's topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				gw, err := s.Gateway(ctx)
				if err != nil {
					return err
				}
				cv := assistant.NewConversation(gw, s.Logger)
				c := s.Engine.AssistantContext(0)
				msg, err := cv.Ask(ctx, c, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msg)
				}
				fmt.Println(msg.Text)
				if len(msg.Citations) > 0 {
					fmt.Println("\nSources:")
					for _, c := range msg.Citations {
						fmt.Printf("  - %s <%s>\n", c.Title, c.URI)
					}
				}
				return nil
			})
		},
	}
}

func speakCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "speak TEXT...",
		Short: "Read text aloud with the advisor voice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				gw, err := s.Gateway(ctx)
				if err != nil {
					return err
				}
				pcm, err := gw.SynthesizeSpeech(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if len(pcm) == 0 {
					fmt.Println("no audio returned")
					return nil
				}
				if out != "" {
					if err := os.WriteFile(out, assistant.EncodeWAV(pcm, assistant.SampleRate, assistant.Channels), 0o644); err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", out)
					return nil
				}
				player := assistant.NewPlayer(assistant.CommandSink{Command: s.Config.Assistant.Player}, s.Logger)
				player.Play(0, pcm)
				go func() {
					<-ctx.Done()
					player.Stop()
				}()
				player.Wait()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write a WAV file instead of playing")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of every change: finalized days, ticked tasks, habits, notes and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if s.Repo == nil {
					return errors.New("the file storage driver keeps no event log")
				}
				events, err := s.Repo.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, strings.TrimSpace(e.EntityKind + " " + e.EntityID), e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if !cmd.Flags().Changed("addr") && s.Config.Server.Addr != "" {
					addr = s.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && s.Config.Server.BasePath != "" {
					basePath = s.Config.Server.BasePath
				}
				advisor, err := s.Conversation(ctx)
				if err != nil {
					return err
				}
				if advisor == nil {
					s.Logger.Warn("assistant disabled: no API key", zap.String("env", s.Config.Assistant.APIKeyEnv))
				}
				cfg := server.Config{
					Engine:   s.Engine,
					Advisor:  advisor,
					BasePath: basePath,
					Logger:   s.Logger.Named("http"),
				}
				if s.Repo != nil {
					cfg.Events = *s.Repo
				}
				handler, err := server.New(cfg)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				if s.Repo != nil && len(s.Config.Webhooks) > 0 {
					d := server.NewDispatcher(*s.Repo, s.Config.Webhooks, s.Logger.Named("webhooks"))
					g.Go(func() error { return d.Run(gctx) })
				}
				fmt.Printf("Serving Sixty API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// bar renders pct (0-100) as a fixed-width bar.
func bar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vowline/internal/app"
	"vowline/internal/config"
	"vowline/internal/db"
	"vowline/internal/domain"
	"vowline/internal/engine"
	"vowline/internal/migrate"
	"vowline/internal/optimizer"
	"vowline/internal/repo"
	"vowline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vl",
	Short: "Vowline CLI",
	Long: `Vowline optimizes wedding-day vendor timelines.
Core concepts:
- Workspace: your .vowline directory holding the database; per-event configs live in the DB.
- Event: one wedding day with a venue window that every task should fit inside.
- Tasks: vendor jobs with setup and breakdown footprints, placed in zones.
- Dependencies: ordering edges (finish-to-start, start-to-start, milestone-gate).
- Conflicts: zone overlaps, vendor double-bookings, dependency and window violations.
- Optimize: propose shifts and buffers within slack; unresolved conflicts are explained.
- Actuals: record what really happened to sharpen vendor reliability profiles.
- Log: append-only diary of changes, view with 'vl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VOWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("event", "", "event id (defaults to the single event in the DB)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("event", rootCmd.PersistentFlags().Lookup("event"))
}

func registerCommands() {
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(resultsCmd())
	rootCmd.AddCommand(actualsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{Use: "event", Short: "Manage events"}
	ev.AddCommand(eventCreateCmd())
	ev.AddCommand(eventListCmd())
	ev.AddCommand(eventShowCmd())
	ev.AddCommand(eventStatusCmd())
	ev.AddCommand(eventDeleteCmd())
	return ev
}

func eventCreateCmd() *cobra.Command {
	var id, name, date, windowStart, windowEnd string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create event",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := time.Parse(time.RFC3339, windowStart)
			if err != nil {
				return fmt.Errorf("--window-start: %w", err)
			}
			we, err := time.Parse(time.RFC3339, windowEnd)
			if err != nil {
				return fmt.Errorf("--window-end: %w", err)
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id))
			ev, err := e.CreateEvent(cmd.Context(), engine.EventCreateOptions{
				ID:          id,
				Name:        name,
				Date:        date,
				WindowStart: ws,
				WindowEnd:   we,
				ActorID:     viper.GetString("actor-id"),
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(ev)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "event id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&date, "date", "", "event date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&windowStart, "window-start", "", "venue window start (RFC3339)")
	cmd.Flags().StringVar(&windowEnd, "window-end", "", "venue window end (RFC3339)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("window-start")
	_ = cmd.MarkFlagRequired("window-end")
	return cmd
}

func eventListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEvents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Date", "Window", "Status"})
				for _, ev := range items {
					window := fmt.Sprintf("%s - %s",
						ev.WindowStart.Format("15:04"), ev.WindowEnd.Format("15:04"))
					tw.AppendRow(table.Row{ev.ID, ev.Name, ev.Date, window, ev.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func eventShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.Repo.GetEvent(ctx, e.Config.Event.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
}

func eventStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Event status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eventID := e.Config.Event.ID
				tasks, err := e.Repo.ListTasks(ctx, eventID)
				if err != nil {
					return err
				}
				edges, err := e.Repo.ListEdges(ctx, eventID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"event_id": eventID,
					"tasks":    len(tasks),
					"edges":    len(edges),
				}
				if latest, err := e.Repo.LatestResult(ctx, eventID); err == nil {
					out["latest_run_id"] = latest.RunID
					out["risk_score"] = latest.RiskScore
					out["unresolved"] = len(latest.Unresolved)
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
}

func eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the active event and its timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteEvent(ctx, e.Config.Event.ID)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage vendor tasks"}
	t.AddCommand(taskAddCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskRmCmd())
	return t
}

func taskAddCmd() *cobra.Command {
	var id, vendorID, category, title, zone, start string
	var duration, setup, breakdown, priority int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a vendor task",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					ID:               id,
					EventID:          e.Config.Event.ID,
					VendorID:         vendorID,
					Category:         category,
					Title:            title,
					Zone:             zone,
					Start:            st,
					DurationMinutes:  duration,
					SetupMinutes:     setup,
					BreakdownMinutes: breakdown,
					Priority:         priority,
					ActorID:          viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&vendorID, "vendor", "", "vendor id")
	cmd.Flags().StringVar(&category, "category", "", "service category (catering, florals, ...)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&zone, "zone", "", "zone (ceremony, reception, kitchen, ...)")
	cmd.Flags().StringVar(&start, "start", "", "service start (RFC3339)")
	cmd.Flags().IntVar(&duration, "duration", 0, "service duration in minutes")
	cmd.Flags().IntVar(&setup, "setup", 0, "setup minutes before start")
	cmd.Flags().IntVar(&breakdown, "breakdown", 0, "breakdown minutes after service")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower moves first)")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("zone")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, e.Config.Event.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Vendor", "Zone", "Start", "Occupied"})
				for _, t := range tasks {
					occupied := fmt.Sprintf("%s - %s",
						t.OccupiedStart().Format("15:04"), t.OccupiedEnd().Format("15:04"))
					tw.AppendRow(table.Row{t.ID, t.Title, t.VendorID, t.Zone, t.Start.Format("15:04"), occupied})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var id, start, zone string
	var duration, setup, breakdown, priority int
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: id, ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("start") {
				st, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				opts.Start = &st
			}
			if cmd.Flags().Changed("duration") {
				opts.DurationMinutes = &duration
			}
			if cmd.Flags().Changed("setup") {
				opts.SetupMinutes = &setup
			}
			if cmd.Flags().Changed("breakdown") {
				opts.BreakdownMinutes = &breakdown
			}
			if cmd.Flags().Changed("zone") {
				opts.Zone = &zone
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id")
	cmd.Flags().StringVar(&start, "start", "", "new service start (RFC3339)")
	cmd.Flags().IntVar(&duration, "duration", 0, "service duration in minutes")
	cmd.Flags().IntVar(&setup, "setup", 0, "setup minutes")
	cmd.Flags().IntVar(&breakdown, "breakdown", 0, "breakdown minutes")
	cmd.Flags().StringVar(&zone, "zone", "", "zone")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func taskRmCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a task and its edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func depCmd() *cobra.Command {
	d := &cobra.Command{Use: "dep", Short: "Manage dependency edges"}
	d.AddCommand(depAddCmd())
	d.AddCommand(depListCmd())
	d.AddCommand(depRmCmd())
	return d
}

func depAddCmd() *cobra.Command {
	var from, to, kind string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a dependency edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edge, err := e.AddDependency(ctx, e.Config.Event.ID, from, to,
					domain.EdgeKind(kind), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(edge)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "predecessor task id")
	cmd.Flags().StringVar(&to, "to", "", "successor task id")
	cmd.Flags().StringVar(&kind, "kind", string(domain.EdgeFinishToStart), "edge kind (finish-to-start, start-to-start, milestone-gate)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func depListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dependency edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edges, err := e.Repo.ListEdges(ctx, e.Config.Event.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edges)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"From", "To", "Kind"})
				for _, edge := range edges {
					tw.AppendRow(table.Row{edge.FromTaskID, edge.ToTaskID, edge.Kind})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func depRmCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a dependency edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveDependency(ctx, e.Config.Event.ID, from, to, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "predecessor task id")
	cmd.Flags().StringVar(&to, "to", "", "successor task id")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func optimizeCmd() *cobra.Command {
	var budget int
	var progress bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run timeline optimization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.OptimizeOptions{
					BudgetIterations: budget,
					ActorID:          viper.GetString("actor-id"),
				}
				if progress && !viper.GetBool("json") {
					opts.Progress = func(p optimizer.Progress) {
						fmt.Printf("\r%.0f%% (%d/%d conflicts)", p.PercentComplete, p.ConflictsResolved, p.ConflictsTotal)
					}
				}
				result, err := e.OptimizeEvent(ctx, e.Config.Event.ID, opts)
				if progress && !viper.GetBool("json") {
					fmt.Println()
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(result)
				}
				printResultSummary(result)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&budget, "budget", 0, "iteration budget (0 uses config default)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print progress while optimizing")
	return cmd
}

func printResultSummary(result domain.OptimizationResult) {
	fmt.Printf("run %s  risk=%.1f  partial=%v  iterations=%d\n",
		result.RunID, result.RiskScore, result.Partial, result.IterationsUsed)
	if len(result.Adjustments) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Task", "Move", "Old Start", "New Start", "Buffer"})
		for _, a := range result.Adjustments {
			tw.AppendRow(table.Row{a.TaskID, a.Move,
				a.OldStart.Format("15:04"), a.NewStart.Format("15:04"), a.AddedBufferMinutes})
		}
		tw.Render()
	}
	if len(result.Unresolved) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Conflict", "Kind", "Cause", "Attempted"})
		for _, u := range result.Unresolved {
			tw.AppendRow(table.Row{u.Conflict.ID, u.Conflict.Kind, u.Cause,
				strings.Join(u.AttemptedMoves, "; ")})
		}
		tw.Render()
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Detect conflicts without proposing changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				conflicts, err := e.DetectConflicts(ctx, e.Config.Event.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(conflicts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Task A", "Task B", "Overlap", "Severity"})
				for _, c := range conflicts {
					tw.AppendRow(table.Row{c.ID, c.Kind, c.TaskA, c.TaskB,
						fmt.Sprintf("%dm", c.OverlapMinutes), fmt.Sprintf("%.1f", c.Severity)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func resultsCmd() *cobra.Command {
	var run string
	var limit int
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show past optimization results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if run != "" {
					res, err := e.Repo.GetResult(ctx, run)
					if err != nil {
						return err
					}
					return printJSONOrTable(res)
				}
				items, err := e.Repo.ListResults(ctx, e.Config.Event.ID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Run", "Created", "Risk", "Resolved", "Unresolved", "Partial"})
				for _, res := range items {
					tw.AppendRow(table.Row{res.RunID, res.CreatedAt, fmt.Sprintf("%.1f", res.RiskScore),
						len(res.Resolved), len(res.Unresolved), res.Partial})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&run, "run", "", "run id (show one result)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max results to list")
	return cmd
}

func actualsCmd() *cobra.Command {
	act := &cobra.Command{Use: "actuals", Short: "Record measured outcomes"}
	act.AddCommand(actualsRecordCmd())
	act.AddCommand(actualsListCmd())
	return act
}

func actualsRecordCmd() *cobra.Command {
	var taskID, start string
	var duration int
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the actual start and duration of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Start(ctx); err != nil {
					return err
				}
				defer e.Updater.Close()
				actual, err := e.RecordActuals(ctx, e.Config.Event.ID, taskID, st, duration, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(actual)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&start, "start", "", "actual start (RFC3339)")
	cmd.Flags().IntVar(&duration, "duration", 0, "actual duration in minutes")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func actualsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded actuals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListActuals(ctx, e.Config.Event.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func profileCmd() *cobra.Command {
	p := &cobra.Command{Use: "profile", Short: "Vendor reliability profiles"}
	p.AddCommand(profileShowCmd())
	p.AddCommand(profileListCmd())
	return p
}

func profileShowCmd() *cobra.Command {
	var vendorID, category string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a vendor's reliability score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Start(ctx); err != nil {
					return err
				}
				defer e.Updater.Close()
				score := e.Score(vendorID, category)
				out := map[string]any{
					"vendor_id": vendorID,
					"category":  category,
					"score":     score,
				}
				if p, ok := e.Profiles.Get(vendorID, category); ok {
					out["samples"] = p.SampleCount
					out["mean_delay_minutes"] = p.MeanDelayMinutes
					out["on_time_rate"] = p.OnTimeRate
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&vendorID, "vendor", "", "vendor id")
	cmd.Flags().StringVar(&category, "category", "", "service category")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored vendor profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProfiles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Vendor", "Category", "Mean Delay", "On-Time", "Samples"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.VendorID, p.Category,
						fmt.Sprintf("%.1fm", p.MeanDelayMinutes),
						fmt.Sprintf("%.0f%%", p.OnTimeRate*100), p.SampleCount})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect event config",
		Long:  "Config is the rulebook (stored in DB per event): zone concurrency, conflict severity weights, optimizer budgets, and profile tuning. Import from vowline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configExportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from a YAML file into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := config.FromFile(file)
				if err != nil {
					return err
				}
				eventID := e.Config.Event.ID
				cfg.Event.ID = eventID
				if err := e.Repo.UpsertEventConfig(ctx, eventID, cfg); err != nil {
					return err
				}
				fmt.Printf("config imported for event %s\n", eventID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "vowline.yml", "YAML config file")
	return cmd
}

func configExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the default config template to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data := config.GenerateDefault(e.Config.Event.ID)
				if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", file)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "vowline.yml", "output file")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The diary of everything that happened: timeline edits, runs, actuals.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.LatestEvents(ctx, n, e.Config.Event.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&evtType, "type", "", "entry type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveEventAndConfig(cmd.Context(), viper.GetString("event"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if err := e.Start(cmd.Context()); err != nil {
				return err
			}
			defer e.Updater.Close()
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Vowline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveEventAndConfig(ctx, viper.GetString("event"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

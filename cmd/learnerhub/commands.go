package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/littlemath/learnerhub/internal/application"
	"github.com/littlemath/learnerhub/internal/application/admin"
	"github.com/littlemath/learnerhub/internal/domain/learner"
	"github.com/littlemath/learnerhub/internal/infrastructure/messaging"
	"github.com/littlemath/learnerhub/internal/infrastructure/persistence"
	"github.com/littlemath/learnerhub/pkg/timeutil"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "learnerhub",
		Short:         "Inspect and drive a young learner's math progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newStatusCmd(a),
		newActivitiesCmd(a),
		newSelectCmd(a),
		newRewardCmd(a),
		newProgressCmd(a),
		newSettingsCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newClearCmd(a),
		newProbeCmd(a),
	)
	return root
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stars, level, badges and play time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				rec := c.Store.Snapshot()
				printf(out, "Stars:      %d\n", rec.Stars)
				printf(out, "Level:      %d\n", rec.Level)
				printf(out, "Play time:  %s\n", timeutil.FormatPlayTime(rec.TotalPlayTime))
				if rec.LastLogin != nil {
					printf(out, "Last login: %s\n", rec.LastLogin.Format(timeutil.FormatDateTime))
				}
				printf(out, "Difficulty: %s, audio %s\n", rec.Settings.Difficulty, onOff(rec.Settings.AudioEnabled))

				unlocked := c.Engine.Unlocked(rec)
				printf(out, "Badges:     %d/%d\n", len(unlocked), len(c.Engine.Rules()))
				for _, rule := range unlocked {
					printf(out, "  %s %s  %s\n", rule.Emoji, rule.Name, rule.Description)
				}
				return nil
			})
		},
	}
}

func newActivitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activities",
		Short: "List activities with their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				for _, e := range c.Registry.Menu() {
					printf(out, "%-13s %-24s %3d/%-3d %3d%%\n",
						e.Kind.ID(), e.Title, e.Progress.Current, e.Progress.Total, e.Progress.Percent())
				}
				return nil
			})
		},
	}
}

func newSelectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "select <activity>",
		Short: "Open an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				sel, err := c.Registry.SelectActivity(cmd.Context(), activityArg(args[0]))
				if err != nil {
					return err
				}
				printf(out, "Now playing %s (%d/%d)\n", sel.Activity.Kind().Title(), sel.Progress.Current, sel.Progress.Total)
				warnPersist(out, sel.PersistErr)
				return nil
			})
		},
	}
}

func newRewardCmd(a *app) *cobra.Command {
	var activityID string

	cmd := &cobra.Command{
		Use:   "reward <stars>",
		Short: "Award stars for a correct answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("stars must be a whole number: %w", err)
			}

			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				if activityID != "" {
					if _, err := c.Registry.SelectActivity(cmd.Context(), activityArg(activityID)); err != nil {
						return err
					}
				}

				res, err := c.Registry.ReportReward(cmd.Context(), amount)
				if err != nil {
					return err
				}
				printf(out, "+%d stars, %d in total\n", amount, res.NewStarTotal)
				if res.LeveledUp {
					printf(out, "Level up! %d -> %d\n", res.OldLevel, res.NewLevel)
				}
				printUnlocks(out, c, res.NewlyUnlocked)
				warnPersist(out, res.PersistErr)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity the reward was earned in")
	return cmd
}

func newProgressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <activity> <completed> <total>",
		Short: "Record how far an activity has got",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			completed, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("completed must be a whole number: %w", err)
			}
			total, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("total must be a whole number: %w", err)
			}

			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				res, err := c.Registry.ReportActivityProgress(cmd.Context(), activityArg(args[0]), completed, total)
				if err != nil {
					return err
				}
				printf(out, "%s: %d/%d (%d%%)\n", res.Activity.Title(), res.Progress.Completed, res.Progress.Total, res.Progress.Percent())
				if res.Clamped {
					printf(out, "note: completed was clamped to %d\n", res.Progress.Completed)
				}
				if res.LeveledUp {
					printf(out, "Level up! now level %d\n", res.NewLevel)
				}
				printUnlocks(out, c, res.NewlyUnlocked)
				warnPersist(out, res.PersistErr)
				return nil
			})
		},
	}
}

func newSettingsCmd(a *app) *cobra.Command {
	var (
		audio      bool
		difficulty string
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change learner settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch learner.SettingsPatch
			if cmd.Flags().Changed("audio") {
				patch.AudioEnabled = &audio
			}
			if cmd.Flags().Changed("difficulty") {
				d := learner.Difficulty(strings.ToLower(difficulty))
				patch.Difficulty = &d
			}

			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				settings := c.Store.Snapshot().Settings
				if !patch.IsEmpty() {
					var err error
					if settings, err = c.Admin.UpdateSettings(cmd.Context(), patch); err != nil {
						return err
					}
				}
				printf(out, "audio: %s\ndifficulty: %s\n", onOff(settings.AudioEnabled), settings.Difficulty)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&audio, "audio", true, "enable sound effects")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "easy, normal or hard")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the learner record as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := admin.ParseFormat(format)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				data, err := c.Admin.Export(f)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = out.Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				printf(out, "exported to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write instead of stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the learner record with an exported one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				format = formatFromPath(args[0])
			}
			f, err := admin.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				report, err := c.Admin.ImportSnapshot(cmd.Context(), data, f)
				if err != nil {
					return err
				}
				rec := c.Store.Snapshot()
				printf(out, "imported: %d stars, level %d\n", rec.Stars, rec.Level)
				if !report.Clean() {
					printf(out, "repaired fields: %s\n", strings.Join(report.Repaired, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml (default from file extension)")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase all learner data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to erase learner data without --yes")
			}
			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				if err := c.Admin.ClearAll(cmd.Context()); err != nil {
					return err
				}
				printf(out, "all learner data erased\n")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm erasing")
	return cmd
}

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the storage backend is writable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return a.withCore(cmd.Context(), out, func(c *application.Core) error {
				if err := c.Admin.Probe(cmd.Context()); err != nil {
					return err
				}
				printf(out, "storage ok (%s)\n", c.Store.Key())

				if g, ok := c.Medium().(*persistence.Guarded); ok {
					cb := g.Breaker()
					counts := cb.Counts()
					printf(out, "circuit %s: %s (%d calls, %d failures, %d rejected)\n",
						cb.Name(), cb.State(), counts.Requests, counts.TotalFailures, counts.Rejected)
				}
				if bus, ok := c.Bus.(*messaging.SyncEventBus); ok {
					snap := bus.Metrics().Snapshot()
					printf(out, "events: %d published, %d handler failures\n", snap.TotalPublished, snap.HandlerFailures)
				}
				return nil
			})
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// activityArg accepts activity ids typed in any case with stray spaces.
func activityArg(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func printUnlocks(out io.Writer, c *application.Core, ids []learner.AchievementID) {
	for _, id := range ids {
		rule, ok := c.Engine.Rule(id)
		if !ok {
			continue
		}
		if rule.Reward > 0 {
			printf(out, "New badge: %s %s (+%d stars)\n", rule.Emoji, rule.Name, rule.Reward)
		} else {
			printf(out, "New badge: %s %s\n", rule.Emoji, rule.Name)
		}
	}
}

func warnPersist(out io.Writer, err error) {
	if err != nil {
		printf(out, "warning: progress kept for this session only: %v\n", err)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return string(admin.FormatYAML)
	default:
		return string(admin.FormatJSON)
	}
}

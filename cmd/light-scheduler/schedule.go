package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sweeney/light-scheduler/internal/control"
	"github.com/sweeney/light-scheduler/internal/logic"
	"github.com/sweeney/light-scheduler/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the stored schedule",
	Args:  cobra.NoArgs,
}

var scheduleGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored on/off hours",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		sched, err := store.ReadSchedule(cmd.Context(), db)
		if err != nil {
			return err
		}
		printSchedule(cmd, sched)
		return nil
	},
}

var scheduleSetFlags struct {
	on, off int
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the stored on/off hours (-1 clears)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		form := url.Values{}
		if cmd.Flags().Changed("on") {
			form.Set(control.KeyScheduleOn, strconv.Itoa(scheduleSetFlags.on))
		}
		if cmd.Flags().Changed("off") {
			form.Set(control.KeyScheduleOff, strconv.Itoa(scheduleSetFlags.off))
		}
		if len(form) == 0 {
			return fmt.Errorf("nothing to set: pass --on and/or --off")
		}
		u, err := control.ParseUpdate([]byte(form.Encode()))
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := db.SetHours(ctx, u.Hours); err != nil {
			return err
		}
		sched, err := store.ReadSchedule(ctx, db)
		if err != nil {
			return err
		}
		printSchedule(cmd, sched)
		return nil
	},
}

func init() {
	scheduleSetCmd.Flags().IntVar(&scheduleSetFlags.on, "on", 0, "Hour (0-23) to switch on, -1 to clear")
	scheduleSetCmd.Flags().IntVar(&scheduleSetFlags.off, "off", 0, "Hour (0-23) to switch off, -1 to clear")
	scheduleCmd.AddCommand(scheduleGetCmd, scheduleSetCmd)
}

func printSchedule(cmd *cobra.Command, sched logic.Schedule) {
	fmt.Fprintf(cmd.OutOrStdout(), "on:  %s\noff: %s\n", sched.On, sched.Off)
}

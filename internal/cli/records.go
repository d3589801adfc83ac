package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
)

func newSlotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "slot <department> <YYYY-MM-DD> <HH:00>",
		Short: "Show occupancy of one slot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()

			key := booking.SlotKey{Department: args[0], Date: args[1], Time: args[2]}
			slot, err := rt.allocator.GetSlot(cmd.Context(), key)
			if errors.Is(err, booking.ErrSlotNotFound) {
				return fmt.Errorf("no bookings for %s", key)
			}
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"department": slot.Key.Department,
				"date":       slot.Key.Date,
				"time":       slot.Key.Time,
				"capacity":   slot.Capacity,
				"count":      slot.Count,
				"patients":   slot.Patients,
			})
		},
	}
}

func newPatientCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "patient <P-id>",
		Short: "Show a registered patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := booking.ParsePatientID(args[0]); err != nil {
				return err
			}

			rt, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()

			p, err := rt.allocator.GetPatient(cmd.Context(), args[0])
			if errors.Is(err, booking.ErrPatientNotFound) {
				return fmt.Errorf("patient %s not found", args[0])
			}
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":           p.ID,
				"registration": p.Registration,
				"created_at":   p.CreatedAt,
			})
		},
	}
}

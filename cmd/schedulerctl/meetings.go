package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	meetingsCmd := &cobra.Command{Use: "meetings", Short: "Meeting assist operations"}

	// create
	var hostID, windowStart, windowEnd, timezone string
	var duration, threshold int
	var cancelIfAnyRefuse, guarantee bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a meeting assist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hostID == "" || windowStart == "" || windowEnd == "" {
				return fmt.Errorf("--host, --window-start and --window-end required")
			}
			payload := map[string]interface{}{
				"hostId":                hostID,
				"windowStartDate":       windowStart,
				"windowEndDate":         windowEnd,
				"durationMinutes":       duration,
				"cancelIfAnyRefuse":     cancelIfAnyRefuse,
				"guaranteeAvailability": guarantee,
				"minThresholdCount":     threshold,
			}
			if timezone != "" {
				payload["timezone"] = timezone
			}
			data, err := doPostJSON(fmt.Sprintf("%s/api/meeting-assists", apiFlag), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	createCmd.Flags().StringVar(&hostID, "host", "", "Host user ID (required)")
	createCmd.Flags().StringVar(&windowStart, "window-start", "", "Window start, RFC 3339 (required)")
	createCmd.Flags().StringVar(&windowEnd, "window-end", "", "Window end, RFC 3339 (required)")
	createCmd.Flags().IntVar(&duration, "duration", 30, "Meeting duration in minutes")
	createCmd.Flags().StringVar(&timezone, "tz", "", "Host time zone (defaults UTC)")
	createCmd.Flags().BoolVar(&cancelIfAnyRefuse, "cancel-if-any-refuse", false, "Cancel when any invitee declines")
	createCmd.Flags().BoolVar(&guarantee, "guarantee", false, "Retry solving with relaxed constraints when infeasible")
	createCmd.Flags().IntVar(&threshold, "threshold", 0, "Minimum responded attendee count")
	meetingsCmd.AddCommand(createCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get MEETING_ID",
		Short: "Get a meeting assist with its invites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/api/meeting-assists/%s", apiFlag, args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	meetingsCmd.AddCommand(getCmd)

	// submit
	submitCmd := &cobra.Command{
		Use:   "submit MEETING_ID",
		Short: "Submit a meeting assist for solving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/api/meeting-assists/%s/submit", apiFlag, args[0]), map[string]interface{}{})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	meetingsCmd.AddCommand(submitCmd)

	// lock
	lockCmd := &cobra.Command{
		Use:   "lock MEETING_ID",
		Short: "Seal preference intake and submit for solving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/api/meeting-assists/%s/lock", apiFlag, args[0]), map[string]interface{}{})
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
	meetingsCmd.AddCommand(lockCmd)

	// expand
	expandCmd := &cobra.Command{
		Use:   "expand MEETING_ID",
		Short: "Expand a recurring meeting assist into occurrences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/api/meeting-assists/%s/expand", apiFlag, args[0]), map[string]interface{}{})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	meetingsCmd.AddCommand(expandCmd)

	// cancel
	var reason string
	cancelCmd := &cobra.Command{
		Use:   "cancel MEETING_ID",
		Short: "Cancel a meeting assist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/api/meeting-assists/%s/cancel", apiFlag, args[0]), map[string]interface{}{"reason": reason})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cancelCmd.Flags().StringVar(&reason, "reason", "cancelled by operator", "Cancellation reason")
	meetingsCmd.AddCommand(cancelCmd)

	// delete
	deleteCmd := &cobra.Command{
		Use:   "delete MEETING_ID",
		Short: "Soft-delete a meeting assist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := doDelete(fmt.Sprintf("%s/api/meeting-assists/%s", apiFlag, args[0])); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, "deleted")
			return nil
		},
	}
	meetingsCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(meetingsCmd)
}

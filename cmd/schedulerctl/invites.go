package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	invitesCmd := &cobra.Command{Use: "invites", Short: "Invite operations"}

	var response string
	respondCmd := &cobra.Command{
		Use:   "respond MEETING_ID ATTENDEE_ID",
		Short: "Record an attendee's invite response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/api/meeting-assists/%s/invites/%s/respond", apiFlag, args[0], args[1])
			data, err := doPostJSON(url, map[string]interface{}{"response": response})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	respondCmd.Flags().StringVar(&response, "response", "", "accept or decline (required)")
	_ = respondCmd.MarkFlagRequired("response")
	invitesCmd.AddCommand(respondCmd)

	rootCmd.AddCommand(invitesCmd)
}

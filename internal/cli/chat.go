package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(opts *options) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the registration agent over stdin",
		Long:  "Each input line is one message. Replies are printed after a blank line. Send an empty line or EOF to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}
				reply := rt.machine.HandleTurn(cmd.Context(), sender, line)
				fmt.Fprintf(out, "%s\n\n", reply)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVarP(&sender, "sender", "s", "cli", "Sender id the session is keyed by")
	return cmd
}

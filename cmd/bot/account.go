package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Validate the API keys and print the account summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBroker(cfg)
		if err != nil {
			return err
		}
		acct, err := client.Validate(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status:          %s\n", acct.Status)
		fmt.Fprintf(out, "portfolio value: %.2f\n", acct.PortfolioValue)
		fmt.Fprintf(out, "last equity:     %.2f\n", acct.LastEquity)
		fmt.Fprintf(out, "buying power:    %.2f\n", acct.BuyingPower)
		return nil
	},
}

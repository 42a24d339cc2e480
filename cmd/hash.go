package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// hashCMD produces the bcrypt hash to put in server.api_password_hash.
func hashCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [password]",
		Short: "Generate a bcrypt hash for the API password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Println(string(hash))
			return nil
		},
	}
}

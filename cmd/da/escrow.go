package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"da-go/internal/app"
)

var escrowCmd = &cobra.Command{
	Use:   "escrow",
	Short: "Retrieve escrowed copies from the vault",
}

var escrowGetCmd = &cobra.Command{
	Use:   "get ACCESSION OUT",
	Short: "Write the escrowed manifest of ACCESSION to OUT (- for stdout)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp("escrow get")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		decrypt, err := unlock(a)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if args[1] != "-" {
			f, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := a.RetrieveManifest(args[0], w, decrypt); err != nil {
			if args[1] != "-" {
				os.Remove(args[1])
			}
			return err
		}
		if args[1] != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Manifest for %s written to %s\n", args[0], args[1])
		}
		return nil
	},
}

var escrowRestoreRegisterCmd = &cobra.Command{
	Use:   "restore-register",
	Short: "Replace the local register with its escrowed snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		passphrase := ""
		if cfg.Encryption.Type == "" || cfg.Encryption.Type == "age" {
			if passphrase, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
		}
		version, err := app.RestoreRegister(cfg, passphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Register restored at version %d\n", version)
		return nil
	},
}

func init() {
	escrowCmd.AddCommand(escrowGetCmd)
	escrowCmd.AddCommand(escrowRestoreRegisterCmd)
}

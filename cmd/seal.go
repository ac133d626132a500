package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/recsched/internal/secrets"
)

func newSealCmd() *cobra.Command {
	var username string

	c := &cobra.Command{
		Use:   "seal",
		Short: "Seal recreation.gov credentials for preferences.sealed_credentials",
		Long: "Reads the password from stdin and prints a sealed token. The token is opened at run time\n" +
			"with the passphrase in " + envPassphrase + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seal(username, os.Getenv(envPassphrase), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&username, "username", "", "recreation.gov account email")
	_ = c.MarkFlagRequired("username")
	return c
}

func seal(username, passphrase string, in io.Reader, out io.Writer) error {
	sealer, err := secrets.NewSealer(passphrase)
	if err != nil {
		return fmt.Errorf("%s: %w", envPassphrase, err)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	creds := secrets.Credentials{Username: username, Password: strings.TrimRight(line, "\r\n")}
	if creds.Empty() {
		return errors.New("username and password are required")
	}
	token, err := sealer.Seal(creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sealed_credentials: %s\n", token)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"promptarchitect/pkg/config"
)

// stdin is the source for passwords and secret values. Tests replace it.
//
//nolint:gochecknoglobals // Swapped in tests
var stdin = os.Stdin

var errNoSecretsFile = errors.New("no secrets file; add one with 'secrets set NAME'")

func newSecretsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
		Long: `Manage API keys stored in .promptarchitect/secrets.json.enc.

The file is encrypted with the project password (scrypt + AES-GCM). Set
PROMPTARCHITECT_PASSWORD to skip the password prompt. Secrets in the file
take precedence over environment variables of the same name.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set NAME",
			Short: "Add or replace a secret (value read from stdin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return secretsSet(flags.projectDir, args[0], cmd.ErrOrStderr())
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List secret names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return secretsList(flags.projectDir, cmd.OutOrStdout(), cmd.ErrOrStderr())
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Remove a secret",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return secretsDelete(flags.projectDir, args[0], cmd.ErrOrStderr())
			},
		},
	)
	return cmd
}

// projectPassword returns PROMPTARCHITECT_PASSWORD or asks for it. A new file asks twice.
func projectPassword(projectDir string, prompts io.Writer) (string, error) {
	if pw := os.Getenv(config.EnvPassword); pw != "" {
		return pw, nil
	}
	pw, err := readSecret(stdin, prompts, "Project password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("password must not be empty")
	}
	if config.SecretsFileExists(projectDir) {
		return pw, nil
	}
	confirm, err := readSecret(stdin, prompts, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}

func secretsSet(projectDir, name string, prompts io.Writer) error {
	if !config.ValidSecretName(name) {
		return fmt.Errorf("invalid secret name %q (letters, digits and underscores only)", name)
	}
	pw, err := projectPassword(projectDir, prompts)
	if err != nil {
		return err
	}
	if config.SecretsFileExists(projectDir) {
		if err := config.LoadSecrets(projectDir, pw); err != nil {
			return fmt.Errorf("failed to unlock secrets: %w", err)
		}
	} else {
		config.SetDecryptedSecrets(map[string]string{})
	}

	value, err := readSecret(stdin, prompts, fmt.Sprintf("Value for %s: ", name))
	if err != nil {
		return err
	}
	if value == "" {
		return errors.New("secret value must not be empty")
	}
	config.SetSecret(name, value)
	if err := config.SaveSecretsToFile(projectDir, pw); err != nil {
		return err
	}
	fmt.Fprintf(prompts, "🔐 Saved %s\n", name)
	return nil
}

func secretsList(projectDir string, out, prompts io.Writer) error {
	if !config.SecretsFileExists(projectDir) {
		return errNoSecretsFile
	}
	pw, err := projectPassword(projectDir, prompts)
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(projectDir, pw)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func secretsDelete(projectDir, name string, prompts io.Writer) error {
	if !config.SecretsFileExists(projectDir) {
		return errNoSecretsFile
	}
	pw, err := projectPassword(projectDir, prompts)
	if err != nil {
		return err
	}
	if err := config.LoadSecrets(projectDir, pw); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	if !slices.Contains(config.GetDecryptedSecretNames(), name) {
		return fmt.Errorf("secret %s not found", name)
	}
	config.DeleteSecret(name)
	if err := config.SaveSecretsToFile(projectDir, pw); err != nil {
		return err
	}
	fmt.Fprintf(prompts, "🗑️  Deleted %s\n", name)
	return nil
}

package main

import (
	"bufio"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"negotiator/pkg/config"
)

//nolint:gochecknoglobals // cobra command tree
var (
	secretsCmd = &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
	}

	secretsInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Create an encrypted secrets file from interactive input",
		RunE:  runSecretsInit,
	}

	secretsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List secret names stored in the encrypted file",
		RunE:  runSecretsList,
	}
)

//nolint:gochecknoinits // cobra subcommand registration
func init() {
	secretsCmd.AddCommand(secretsInitCmd, secretsListCmd)
}

func runSecretsInit(cmd *cobra.Command, _ []string) error {
	password, err := readPasswordTwice()
	if err != nil {
		return err
	}

	secrets := make(map[string]string)
	reader := bufio.NewReader(cmd.InOrStdin())
	fmt.Println("Enter secrets as NAME=value, empty line to finish:")
	for {
		line, err := prompt(reader, "> ")
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, "=")
		if !found || name == "" {
			fmt.Println("expected NAME=value")
			continue
		}
		secrets[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	if err := config.EncryptSecretsFile(".", password, secrets); err != nil {
		return err
	}
	fmt.Printf("✅ stored %d secrets\n", len(secrets))
	return nil
}

func runSecretsList(_ *cobra.Command, _ []string) error {
	if !config.SecretsFileExists(".") {
		return fmt.Errorf("no secrets file found, run 'negotiator secrets init' first")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	secrets, err := config.DecryptSecretsFile(".", string(password))
	if err != nil {
		return err
	}
	for name := range secrets {
		fmt.Println(name)
	}
	return nil
}

func readPasswordTwice() (string, error) {
	if !term.IsTerminal(syscall.Stdin) {
		return "", fmt.Errorf("secrets init requires an interactive terminal")
	}

	fmt.Print("Password: ")
	first, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Print("Confirm: ")
	second, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}
	return string(first), nil
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/walink/internal/repository"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Operator management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new operator",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all operators",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete [email]",
	Short: "Delete an operator",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userResetPasswordCmd = &cobra.Command{
	Use:   "reset-password [email]",
	Short: "Reset operator password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserResetPassword,
}

var (
	userEmail    string
	userPassword string
	userName     string
	userYes      bool
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Operator email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Operator password (will prompt if not provided)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Operator name")
	userCreateCmd.MarkFlagRequired("email")

	userDeleteCmd.Flags().BoolVarP(&userYes, "yes", "y", false, "Skip confirmation")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userResetPasswordCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	password := userPassword
	if password == "" {
		password, err = promptPassword("Enter password: ")
		if err != nil {
			return err
		}
	}

	u, err := repository.NewUserRepository(database).Create(cmd.Context(), userEmail, password, userName)
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("user with email %s already exists", userEmail)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s created successfully\n", u.Email)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	users, err := repository.NewUserRepository(database).List(cmd.Context())
	if err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tCREATED")
	fmt.Fprintln(w, "--\t-----\t----\t-------")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	email := args[0]

	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if !userYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Are you sure you want to delete user %s?", email)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}

	err = repository.NewUserRepository(database).DeleteByEmail(cmd.Context(), email)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("user %s not found", email)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s deleted\n", email)
	return nil
}

func runUserResetPassword(cmd *cobra.Command, args []string) error {
	email := args[0]

	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	users := repository.NewUserRepository(database)
	if _, err := users.GetByEmail(cmd.Context(), email); err != nil {
		return fmt.Errorf("user %s not found", email)
	}

	password, err := promptPassword("Enter new password: ")
	if err != nil {
		return err
	}

	if err := users.SetPassword(cmd.Context(), email, password); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Password for %s updated successfully\n", email)
	return nil
}

// promptPassword reads a password twice from the terminal without echo
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	pw2, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if string(pw) != string(pw2) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

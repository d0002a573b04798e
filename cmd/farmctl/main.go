// Command farmctl runs one-off maintenance tasks against the farmhub
// database: applying the schema and creating accounts out of band.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/geocoder89/farmhub/internal/security"
	"github.com/geocoder89/farmhub/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	Version = "0.1.0"
	appName = "farmctl"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := rootCmd(stdin)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	return cmd.Execute()
}

type dbFlags struct {
	driver     string
	dbURL      string
	sqlitePath string
}

// config applies flag overrides on top of the environment.
func (f dbFlags) config() config.Config {
	cfg := config.Load()
	if f.driver != "" {
		cfg.DBDriver = strings.ToLower(f.driver)
	}
	if f.dbURL != "" {
		cfg.DBURL = f.dbURL
	}
	if f.sqlitePath != "" {
		cfg.SQLitePath = f.sqlitePath
	}
	return cfg
}

func rootCmd(stdin io.Reader) *cobra.Command {
	var flags dbFlags

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "farmhub maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "Database driver (postgres or sqlite); defaults to DB_DRIVER")
	cmd.PersistentFlags().StringVar(&flags.dbURL, "db-url", "", "Postgres URL; defaults to DATABASE_URL")
	cmd.PersistentFlags().StringVar(&flags.sqlitePath, "sqlite-path", "", "SQLite file; defaults to SQLITE_PATH")

	cmd.AddCommand(migrateCmd(&flags))
	cmd.AddCommand(createUserCmd(&flags, stdin))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func quietLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func migrateCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags.config()

			ctx, cancel := config.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := storage.Open(ctx, cfg, nil, quietLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer stores.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", stores.Driver)
			return nil
		},
	}
}

func createUserCmd(flags *dbFlags, stdin io.Reader) *cobra.Command {
	var (
		email    string
		name     string
		role     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account, including admins",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = user.NormalizeEmail(email)
			name = strings.TrimSpace(name)
			role = strings.ToLower(strings.TrimSpace(role))

			if !user.ValidRole(role) {
				return fmt.Errorf("role must be %q or %q", user.RoleUser, user.RoleAdmin)
			}

			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				var err error
				password, err = readPassword(stdin)
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}

			if len(strings.TrimSpace(password)) < 6 {
				return errors.New("password must be at least 6 characters")
			}

			cfg := flags.config()

			ctx, cancel := config.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := storage.Open(ctx, cfg, nil, quietLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer stores.Close()

			hash, err := security.NewHasher(cfg.BcryptCost, 1).Hash(ctx, password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}

			now := time.Now().UTC()

			u, err := stores.Users.Create(ctx, user.User{
				ID:           uuid.NewString(),
				Email:        email,
				PasswordHash: hash,
				Name:         name,
				Role:         role,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				if errors.Is(err, user.ErrEmailTaken) {
					return fmt.Errorf("user %s already exists", email)
				}
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %s created successfully with role %s (id %s)\n", u.Email, u.Role, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", user.RoleUser, "Role (user or admin)")
	cmd.Flags().StringVar(&password, "password", "", "Password (optional, will prompt if omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

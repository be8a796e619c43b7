package cli

import (
	"errors"
	"strings"

	"writepad/internal/client"

	"github.com/spf13/cobra"
)

type whoami struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	UserName      string `json:"userName,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

func describe(s *client.Session) whoami {
	if s == nil {
		return whoami{}
	}
	return whoami{
		Authenticated: true,
		UserID:        s.UserID,
		UserName:      s.UserName,
		ExpiresAt:     s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func newLoginCmd(app *App) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, or by name when dev login is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := client.Credentials{Provider: "dev", Name: strings.TrimSpace(name)}
			if strings.TrimSpace(email) != "" {
				creds = client.Credentials{Provider: "password", Email: strings.TrimSpace(email), Password: password}
			}
			if creds.Provider == "dev" && creds.Name == "" {
				return writeErr(cmd, errors.New("pass --email and --password, or --name for dev login"))
			}

			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			session, err := s.auth.SignIn(cmd.Context(), creds)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, describe(&session))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (dev login)")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", envOr("WRITEPAD_PASSWORD", ""), "Account password (WRITEPAD_PASSWORD)")
	return cmd
}

func newSignupCmd(app *App) *cobra.Command {
	var input client.SignUpInput

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			session, err := s.auth.SignUp(cmd.Context(), input)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, describe(&session))
		},
	}

	cmd.Flags().StringVar(&input.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&input.Password, "password", envOr("WRITEPAD_PASSWORD", ""), "Account password (WRITEPAD_PASSWORD)")
	cmd.Flags().StringVar(&input.DisplayName, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			if err := s.workspace.SignOut(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, describe(nil))
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())
			return writeOut(cmd, app, describe(s.auth.Session()))
		},
	}
}

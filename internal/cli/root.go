// Package cli is the writepad command line: a cobra tree over the client
// workspace. Every command prints a JSON envelope {"data": ...} on stdout.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"writepad/internal/client"
	"writepad/internal/config"

	"github.com/spf13/cobra"
)

type App struct {
	APIURL       string
	TokenFile    string
	PrettyJSON   bool
	Timeout      time.Duration
	AutosaveWait time.Duration
	Verbose      bool
}

func NewRootCmd() *cobra.Command {
	cfg := config.LoadClient()
	app := &App{AutosaveWait: cfg.AutosaveWait}

	cmd := &cobra.Command{
		Use:          "writepad",
		Short:        "Write, publish and read novels from the terminal",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Sign in against a local API with dev login enabled
  writepad login --name Robin

  # Create a novel and a first chapter
  writepad novels create --title "Salt Roads"
  writepad chapters create --novel <novel-id> --title "Landfall"

  # Move a chapter above another and publish it tomorrow
  writepad chapters reorder --novel <novel-id> <chapter-id> <target-id>
  writepad chapters schedule --novel <novel-id> <chapter-id> --at 2026-11-01T09:00:00Z

  # Read what others have published
  writepad explore "sea"
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api", cfg.APIURL, "API base URL (WRITEPAD_API_URL)")
	cmd.PersistentFlags().StringVar(&app.TokenFile, "token-file", cfg.TokenFile, "Where the session is kept between commands (WRITEPAD_TOKEN_FILE)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().DurationVar(&app.Timeout, "timeout", cfg.Timeout, "HTTP timeout per request")
	cmd.PersistentFlags().BoolVar(&app.Verbose, "verbose", envOr("WRITEPAD_VERBOSE", "") != "", "Log store activity to stderr")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newSignupCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newNovelsCmd(app))
	cmd.AddCommand(newChaptersCmd(app))
	cmd.AddCommand(newLoreCmd(app))
	cmd.AddCommand(newInboxCmd(app))
	cmd.AddCommand(newProfileCmd(app))
	cmd.AddCommand(newExploreCmd(app))
	cmd.AddCommand(newReadCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newGenerateCmd(app))
	cmd.AddCommand(newAccountCmd(app))

	return cmd
}

// session is one command's view of the backend: the HTTP client, the auth
// state restored from the token file, and the workspace following it.
type session struct {
	backend   *client.HTTPBackend
	auth      *client.Auth
	workspace *client.Workspace
}

func (s *session) close(ctx context.Context) error {
	return s.workspace.Close(ctx)
}

func (app *App) logger(cmd *cobra.Command) *log.Logger {
	if !app.Verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "writepad: ", log.LstdFlags)
}

// openSession restores any saved session and keeps the token file in step
// with later changes.
func openSession(cmd *cobra.Command, app *App) (*session, error) {
	backend := client.NewHTTPBackend(app.APIURL, app.Timeout)
	logger := app.logger(cmd)
	auth := client.NewAuth(backend, client.WithAuthLogger(logger))
	backend.UseTokens(auth)

	if app.TokenFile != "" {
		auth.OnChange(func(s *client.Session) {
			if err := client.SaveSession(app.TokenFile, s); err != nil {
				logger.Printf("save session: %v", err)
			}
		})
		saved, err := client.LoadSession(app.TokenFile)
		if err != nil {
			return nil, err
		}
		if saved != nil {
			if _, err := auth.Restore(cmd.Context(), *saved); err != nil {
				logger.Printf("restore session: %v", err)
			}
		}
	}

	ws := client.NewWorkspace(backend, auth,
		client.WithAutosaveDelay(app.AutosaveWait),
		client.WithLogger(logger))
	ws.Start()
	return &session{backend: backend, auth: auth, workspace: ws}, nil
}

// signedIn opens a session and fails unless a user is signed in.
func signedIn(cmd *cobra.Command, app *App) (*session, error) {
	s, err := openSession(cmd, app)
	if err != nil {
		return nil, err
	}
	if s.auth.Session() == nil {
		_ = s.close(cmd.Context())
		return nil, fmt.Errorf("%w; run `writepad login` first", &client.AuthRequiredError{Op: cmd.CommandPath()})
	}
	return s, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(map[string]any{"data": v})
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "error (%s): %s\n", client.Kind(err), err.Error())
	return err
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"writepad/internal/client"
	"writepad/internal/domain"

	"github.com/spf13/cobra"
)

func newProfileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Your public profile",
	}

	var username, bio string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your username or bio",
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.ProfilePatch
			if cmd.Flags().Changed("username") {
				patch.Username = domain.Ptr(strings.TrimSpace(username))
			}
			if cmd.Flags().Changed("bio") {
				patch.Bio = domain.Ptr(bio)
			}
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			profile, err := s.backend.UpdateProfile(cmd.Context(), patch)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, profile)
		},
	}
	update.Flags().StringVar(&username, "username", "", "Public username")
	update.Flags().StringVar(&bio, "bio", "", "Short bio")

	var file string
	avatar := &cobra.Command{
		Use:   "avatar",
		Short: "Upload an avatar image",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			object, err := s.backend.Upload(cmd.Context(), "avatars", imageType(file, data), data)
			if err != nil {
				return writeErr(cmd, err)
			}
			profile, err := s.backend.UpdateProfile(cmd.Context(), domain.ProfilePatch{AvatarURL: domain.Ptr(object.URL)})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, profile)
		},
	}
	avatar.Flags().StringVar(&file, "file", "", "Image file")
	_ = avatar.MarkFlagRequired("file")

	cmd.AddCommand(update, avatar)
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	var format, include, out string

	cmd := &cobra.Command{
		Use:   "export <novel-id>",
		Short: "Download a manuscript as html, pdf or docx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			data, filename, err := s.backend.Export(cmd.Context(), args[0], format, include)
			if err != nil {
				return writeErr(cmd, err)
			}
			path := out
			if path == "" {
				path = filepath.Base(filename)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return writeErr(cmd, fmt.Errorf("write %s: %w", path, err))
			}
			return writeOut(cmd, app, map[string]any{"path": path, "bytes": len(data)})
		},
	}

	cmd.Flags().StringVar(&format, "format", "html", "html, pdf or docx")
	cmd.Flags().StringVar(&include, "include", "all", "all chapters, or live for published only")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to the server's filename)")
	return cmd
}

func newGenerateCmd(app *App) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Ask the story assistant for a passage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return writeErr(cmd, errors.New("--prompt is required"))
			}
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			var result struct {
				Text string `json:"text"`
			}
			if err := s.backend.Invoke(cmd.Context(), "generate", map[string]string{"prompt": prompt}, &result); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, result)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "What to write about")
	return cmd
}

func newAccountCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account management",
	}

	var confirm bool
	remove := &cobra.Command{
		Use:   "delete",
		Short: "Permanently delete your account, novels and uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return writeErr(cmd, errors.New("refusing to delete without --yes"))
			}
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			var result map[string]any
			if err := s.backend.Invoke(cmd.Context(), "delete_own_account", nil, &result); err != nil {
				return writeErr(cmd, err)
			}
			if app.TokenFile != "" {
				if err := client.SaveSession(app.TokenFile, nil); err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeOut(cmd, app, result)
		},
	}
	remove.Flags().BoolVar(&confirm, "yes", false, "Confirm deletion")

	cmd.AddCommand(remove)
	return cmd
}

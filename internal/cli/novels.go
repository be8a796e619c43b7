package cli

import (
	"net/http"
	"path/filepath"
	"strings"

	"writepad/internal/domain"

	"github.com/spf13/cobra"
)

func newNovelsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "novels",
		Short: "Novel commands",
	}
	cmd.AddCommand(newNovelsListCmd(app))
	cmd.AddCommand(newNovelsCreateCmd(app))
	cmd.AddCommand(newNovelsUpdateCmd(app))
	cmd.AddCommand(newNovelsDeleteCmd(app))
	cmd.AddCommand(newNovelsCoverCmd(app))
	return cmd
}

func newNovelsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your novels, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			novels, err := s.workspace.Novels()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := novels.Fetch(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, novels.Items())
		},
	}
}

// novelFlags binds the editable novel fields; only flags the user set end up
// in the patch.
func novelFlags(cmd *cobra.Command) func() domain.NovelPatch {
	var title, description, genre string
	var public bool
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&genre, "genre", "", "Genre")
	cmd.Flags().BoolVar(&public, "public", false, "Show the novel on explore")

	return func() domain.NovelPatch {
		var patch domain.NovelPatch
		if cmd.Flags().Changed("title") {
			patch.Title = domain.Ptr(strings.TrimSpace(title))
		}
		if cmd.Flags().Changed("description") {
			patch.Description = domain.Ptr(description)
		}
		if cmd.Flags().Changed("genre") {
			patch.Genre = domain.Ptr(strings.TrimSpace(genre))
		}
		if cmd.Flags().Changed("public") {
			patch.IsPublic = domain.Ptr(public)
		}
		return patch
	}
}

func newNovelsCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a novel (title defaults to \"Untitled Novel\")",
	}
	patch := novelFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := signedIn(cmd, app)
		if err != nil {
			return writeErr(cmd, err)
		}
		defer s.close(cmd.Context())

		novels, err := s.workspace.Novels()
		if err != nil {
			return writeErr(cmd, err)
		}
		novel, err := novels.Create(cmd.Context(), patch())
		if err != nil {
			return writeErr(cmd, err)
		}
		return writeOut(cmd, app, novel)
	}
	return cmd
}

func newNovelsUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <novel-id>",
		Short: "Change a novel's details",
		Args:  cobra.ExactArgs(1),
	}
	patch := novelFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := signedIn(cmd, app)
		if err != nil {
			return writeErr(cmd, err)
		}
		defer s.close(cmd.Context())

		novels, err := s.workspace.Novels()
		if err != nil {
			return writeErr(cmd, err)
		}
		if err := novels.Fetch(cmd.Context()); err != nil {
			return writeErr(cmd, err)
		}
		novel, err := novels.Update(cmd.Context(), args[0], patch())
		if err != nil {
			return writeErr(cmd, err)
		}
		return writeOut(cmd, app, novel)
	}
	return cmd
}

func newNovelsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <novel-id>",
		Short: "Delete a novel with its chapters and lore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := signedIn(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			novels, err := s.workspace.Novels()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := novels.Fetch(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			if err := novels.Remove(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"deleted": args[0]})
		},
	}
}

func newNovelsCoverCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "cover <novel-id>",
		Short: "Upload a cover image",
		Args:  cobra.ExactArgs(1),
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

			novels, err := s.workspace.Novels()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := novels.Fetch(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			novel, err := novels.UploadCover(cmd.Context(), args[0], imageType(file, data), data)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, novel)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Image file (png, jpeg, webp or gif)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// imageType prefers the file extension and falls back to content sniffing.
func imageType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return http.DetectContentType(data)
}

package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newExploreCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "explore [query]",
		Short: "Browse public novels, optionally searching",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			query := ""
			if len(args) == 1 {
				query = strings.TrimSpace(args[0])
			}
			novels, err := s.workspace.Reader().Explore(cmd.Context(), query)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, novels)
		},
	}
}

func newReadCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read published novels",
	}

	novel := &cobra.Command{
		Use:   "novel <novel-id>",
		Short: "Show a public novel and its table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			reader := s.workspace.Reader()
			details, err := reader.Novel(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			toc, err := reader.TableOfContents(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"novel": details, "chapters": toc})
		},
	}

	var first bool
	chapter := &cobra.Command{
		Use:   "chapter <chapter-id | novel-id>",
		Short: "Read a live chapter, or with --first the opening chapter of a novel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			reader := s.workspace.Reader()
			read := reader.Chapter
			if first {
				read = reader.FirstChapter
			}
			ch, err := read(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, ch)
		},
	}
	chapter.Flags().BoolVar(&first, "first", false, "Treat the argument as a novel id and open its first chapter")

	author := &cobra.Command{
		Use:   "author <user-id>",
		Short: "Show an author's profile and public novels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.close(cmd.Context())

			profile, err := s.workspace.Reader().Profile(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, profile)
		},
	}

	cmd.AddCommand(novel, chapter, author)
	return cmd
}

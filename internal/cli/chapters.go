package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"writepad/internal/client"
	"writepad/internal/domain"

	"github.com/spf13/cobra"
)

type chapterView struct {
	domain.Chapter
	Status domain.ChapterStatus `json:"status"`
}

func viewChapters(chapters []domain.Chapter, now time.Time) []chapterView {
	out := make([]chapterView, 0, len(chapters))
	for _, c := range chapters {
		out = append(out, chapterView{Chapter: c, Status: domain.Status(c, now)})
	}
	return out
}

func viewChapter(c domain.Chapter) chapterView {
	return chapterView{Chapter: c, Status: domain.Status(c, time.Now())}
}

func newChaptersCmd(app *App) *cobra.Command {
	var novelID string

	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "Chapter commands for one novel",
	}
	cmd.PersistentFlags().StringVar(&novelID, "novel", envOr("WRITEPAD_NOVEL", ""), "Novel id (WRITEPAD_NOVEL)")

	novel := func() (string, error) {
		id := strings.TrimSpace(novelID)
		if id == "" {
			return "", fmt.Errorf("--novel is required")
		}
		return id, nil
	}

	cmd.AddCommand(newChaptersListCmd(app, novel))
	cmd.AddCommand(newChaptersCreateCmd(app, novel))
	cmd.AddCommand(newChaptersRenameCmd(app, novel))
	cmd.AddCommand(newChaptersDeleteCmd(app, novel))
	cmd.AddCommand(newChaptersReorderCmd(app, novel))
	cmd.AddCommand(newChaptersPublishCmd(app, novel))
	cmd.AddCommand(newChaptersScheduleCmd(app, novel))
	cmd.AddCommand(newChaptersUnpublishCmd(app, novel))
	cmd.AddCommand(newChaptersEditCmd(app, novel))
	return cmd
}

// withChapters signs in, opens the novel and runs fn against its chapter
// store. Pending autosaves are flushed before the command returns.
func withChapters(cmd *cobra.Command, app *App, novel func() (string, error), fn func(*client.ChapterStore) error) error {
	novelID, err := novel()
	if err != nil {
		return writeErr(cmd, err)
	}
	s, err := signedIn(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	chapters, _, err := s.workspace.OpenNovel(cmd.Context(), novelID)
	if err != nil {
		_ = s.close(cmd.Context())
		return writeErr(cmd, err)
	}
	runErr := fn(chapters)
	if closeErr := s.close(cmd.Context()); runErr == nil && closeErr != nil {
		runErr = closeErr
	}
	if runErr != nil {
		return writeErr(cmd, runErr)
	}
	return nil
}

func newChaptersListCmd(app *App, novel func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chapters in reading order with their publish status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				return writeOut(cmd, app, viewChapters(chapters.Items(), time.Now()))
			})
		},
	}
}

func newChaptersCreateCmd(app *App, novel func() (string, error)) *cobra.Command {
	var title, file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Append a chapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := client.ChapterInput{Title: strings.TrimSpace(title)}
			if file != "" {
				data, err := readInput(cmd, file)
				if err != nil {
					return writeErr(cmd, err)
				}
				input.Content = string(data)
			}
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				chapter, err := chapters.Create(cmd.Context(), input)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapter(chapter))
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Chapter title")
	cmd.Flags().StringVar(&file, "file", "", "Initial content, plain text or editor JSON (- for stdin)")
	return cmd
}

func newChaptersRenameCmd(app *App, novel func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chapter-id> <title>",
		Short: "Rename a chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				chapter, err := chapters.Update(cmd.Context(), args[0], domain.ChapterPatch{Title: domain.Ptr(strings.TrimSpace(args[1]))})
				if err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapter(chapter))
			})
		},
	}
}

func newChaptersDeleteCmd(app *App, novel func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chapter-id>",
		Short: "Delete a chapter and close the gap in the order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				if err := chapters.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapters(chapters.Items(), time.Now()))
			})
		},
	}
}

func newChaptersReorderCmd(app *App, novel func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <chapter-id> <target-id>",
		Short: "Move a chapter into the position held by another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				if err := chapters.Reorder(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapters(chapters.Items(), time.Now()))
			})
		},
	}
}

func newChaptersPublishCmd(app *App, novel func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <chapter-id>",
		Short: "Publish a chapter now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				chapter, err := chapters.PublishNow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapter(chapter))
			})
		},
	}
}

func newChaptersScheduleCmd(app *App, novel func() (string, error)) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "schedule <chapter-id>",
		Short: "Publish a chapter at a future time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(at, time.Now())
			if err != nil {
				return writeErr(cmd, err)
			}
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				chapter, err := chapters.Schedule(cmd.Context(), args[0], when)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapter(chapter))
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 time, or a duration from now such as 36h")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

// parseWhen accepts an RFC 3339 timestamp or a Go duration relative to now.
func parseWhen(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid --at %q: want RFC 3339 time or duration", value)
}

func newChaptersUnpublishCmd(app *App, novel func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "unpublish <chapter-id>",
		Short: "Return a chapter to draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				chapter, err := chapters.Unpublish(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, viewChapter(chapter))
			})
		},
	}
}

func newChaptersEditCmd(app *App, novel func() (string, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "edit <chapter-id>",
		Short: "Stream new content into a chapter through autosave",
		Long: strings.TrimSpace(`
Reads the content line by line and hands each growing draft to the editor
autosave, so a burst of input is written once after the autosave delay.
Whatever is still pending when input ends is saved before the command exits.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withChapters(cmd, app, novel, func(chapters *client.ChapterStore) error {
				if err := chapters.SetActive(cmd.Context(), args[0]); err != nil {
					return err
				}
				var draft strings.Builder
				scanner := bufio.NewScanner(bytes.NewReader(data))
				scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
				for scanner.Scan() {
					if draft.Len() > 0 {
						draft.WriteByte('\n')
					}
					draft.WriteString(scanner.Text())
					if err := chapters.EditContent(draft.String()); err != nil {
						return err
					}
				}
				if err := scanner.Err(); err != nil {
					return err
				}
				if err := chapters.SaveNow(cmd.Context()); err != nil {
					return err
				}
				chapter, _ := chapters.Active()
				return writeOut(cmd, app, viewChapter(chapter))
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "Content source (- for stdin)")
	return cmd
}

package cli

import (
	"fmt"
	"strings"

	"writepad/internal/client"
	"writepad/internal/domain"

	"github.com/spf13/cobra"
)

func newLoreCmd(app *App) *cobra.Command {
	var novelID string

	cmd := &cobra.Command{
		Use:   "lore",
		Short: "Characters, locations and items of one novel",
	}
	cmd.PersistentFlags().StringVar(&novelID, "novel", envOr("WRITEPAD_NOVEL", ""), "Novel id (WRITEPAD_NOVEL)")

	run := func(cmd *cobra.Command, fn func(*client.LoreStore) error) error {
		id := strings.TrimSpace(novelID)
		if id == "" {
			return writeErr(cmd, fmt.Errorf("--novel is required"))
		}
		s, err := signedIn(cmd, app)
		if err != nil {
			return writeErr(cmd, err)
		}
		defer s.close(cmd.Context())
		_, lore, err := s.workspace.OpenNovel(cmd.Context(), id)
		if err != nil {
			return writeErr(cmd, err)
		}
		if err := fn(lore); err != nil {
			return writeErr(cmd, err)
		}
		return nil
	}

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List lore entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(lore *client.LoreStore) error {
				if kind == "" {
					return writeOut(cmd, app, lore.Items())
				}
				parsed, err := domain.ParseLoreType(kind)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, lore.OfType(parsed))
			})
		},
	}
	list.Flags().StringVar(&kind, "type", "", "Only character, location or item")

	var input client.LoreInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a lore entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(lore *client.LoreStore) error {
				entry, err := lore.Create(cmd.Context(), input)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, entry)
			})
		},
	}
	create.Flags().StringVar(&input.Title, "title", "", "Entry title")
	create.Flags().StringVar(&input.Type, "type", "character", "character, location or item")
	create.Flags().StringVar(&input.Description, "description", "", "Description")
	_ = create.MarkFlagRequired("title")

	var title, description, newType string
	update := &cobra.Command{
		Use:   "update <entry-id>",
		Short: "Change a lore entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.LorePatch
			if cmd.Flags().Changed("title") {
				patch.Title = domain.Ptr(strings.TrimSpace(title))
			}
			if cmd.Flags().Changed("description") {
				patch.Description = domain.Ptr(description)
			}
			if cmd.Flags().Changed("type") {
				patch.Type = domain.Ptr(domain.LoreType(newType))
			}
			return run(cmd, func(lore *client.LoreStore) error {
				entry, err := lore.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, entry)
			})
		},
	}
	update.Flags().StringVar(&title, "title", "", "Entry title")
	update.Flags().StringVar(&description, "description", "", "Description")
	update.Flags().StringVar(&newType, "type", "", "character, location or item")

	remove := &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete a lore entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(lore *client.LoreStore) error {
				if err := lore.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"deleted": args[0]})
			})
		},
	}

	cmd.AddCommand(list, create, update, remove)
	return cmd
}

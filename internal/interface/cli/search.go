package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/wassup-/textpod/internal/application/service"
	"github.com/wassup-/textpod/internal/domain/model/note"
	infrarepo "github.com/wassup-/textpod/internal/infrastructure/repository"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>...",
		Short: "Search notes offline",
		Long:  "Load the note store, rebuild the search index and print notes matching every term, newest first.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args)
		},
	}
}

func runSearch(cmd *cobra.Command, terms []string) error {
	ctx := context.Background()

	repo, err := infrarepo.NewDayLogRepository(afero.NewOsFs(), globalConfig.NotesDir())
	if err != nil {
		return fmt.Errorf("open note store: %w", err)
	}

	days, err := repo.ListDays(ctx)
	if err != nil {
		return err
	}
	var all []*note.Note
	for _, day := range days {
		notes, err := repo.ReadDay(ctx, day)
		if err != nil {
			return err
		}
		all = append(all, notes...)
	}

	index := service.NewSearchIndex()
	index.Rebuild(all)

	ids := index.Query(terms...)
	if len(ids) == 0 {
		cmd.Println("no matches")
		return nil
	}

	notes, err := service.ResolveNotes(ctx, repo, ids)
	if err != nil {
		return err
	}

	for _, n := range notes {
		cmd.Printf("%s  %s\n", n.ID, firstLine(n.Body))
	}
	return nil
}

func firstLine(body string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
	const max = 100
	if len(line) > max {
		return line[:max] + "..."
	}
	return line
}

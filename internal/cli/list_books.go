package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/entities"
)

// ListBooksCommand prints the catalog, or the books matching a search, as a table.
type ListBooksCommand struct {
	APIURL  string
	Query   string
	Timeout time.Duration

	Out io.Writer
}

func NewListBooksCommand() *ListBooksCommand {
	return &ListBooksCommand{Out: os.Stdout}
}

func (cmd *ListBooksCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("list-books", flag.ContinueOnError)

	fs.StringVar(&cmd.APIURL, "api", envOr("BOOK_API_URL", config.DefaultBookAPIURL), "Base URL of the Book API")
	fs.StringVar(&cmd.Query, "query", "", "Search query; lists every book when empty")
	fs.DurationVar(&cmd.Timeout, "timeout", 10*time.Second, "Request timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s list-books [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List books from the Book API.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s list-books -api http://localhost:5000\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s list-books -query dune\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.APIURL == "" {
		return fmt.Errorf("required flag -api not provided")
	}
	return nil
}

func (cmd *ListBooksCommand) Run() error {
	client := bookapi.NewClient(cmd.APIURL, cmd.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	var (
		books []entities.Book
		err   error
	)
	query := strings.TrimSpace(cmd.Query)
	if query == "" {
		books, err = client.ListBooks(ctx)
	} else {
		books, err = client.SearchBooks(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch books: %w", err)
	}

	if len(books) == 0 {
		fmt.Fprintln(cmd.Out, "No books found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tYEAR\tISBN")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.Title, b.Author, b.PublicationYear, b.ISBN)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Out, "\n%d book(s)\n", len(books))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

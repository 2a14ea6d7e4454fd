package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/dotpost/internal/client"
	"github.com/bryan-buckman/dotpost/internal/config"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/store"
)

var (
	flagPage    int
	flagSize    int
	flagAuthor  string
	flagID      string
	flagTitle   string
	flagDate    string
	flagContent string
	flagServer  string
	flagUser    string
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Work with posts on a dotpost server",
	Long: `List, read, search and edit posts on the server at client.base_url.

Requests are sent as client.username (or $DOTPOST_USERNAME).`,
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of posts grouped by day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []store.Option
		if flagAuthor != "" {
			opts = append(opts, store.WithPredicate(map[string]string{"author": flagAuthor}))
		}
		cfg, s, err := newPostStore(opts...)
		if err != nil {
			return err
		}
		params := cfg.DefaultPageParams()
		if flagPage > 0 {
			params.PageNumber = flagPage
		}
		if flagSize > 0 {
			params.PageSize = flagSize
		}
		s.SetPagingParams(params)

		if err := s.LoadPosts(cmd.Context()); err != nil {
			return err
		}
		printGroups(cmd.OutOrStdout(), s)
		return nil
	},
}

var postsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a single post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid post id %q", args[0])
		}
		_, s, err := newPostStore()
		if err != nil {
			return err
		}
		p, err := s.LoadPost(cmd.Context(), id)
		if err != nil {
			return err
		}
		printPost(cmd.OutOrStdout(), p)
		return nil
	},
}

var postsSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search post titles and content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := newPostStore()
		if err != nil {
			return err
		}
		found, err := s.SearchPosts(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(found) == 0 {
			fmt.Fprintln(out, "No posts found.")
			return nil
		}
		for _, p := range found {
			fmt.Fprintf(out, "%s  %s  %s (%s)\n", p.ID, p.Date.Format(time.DateOnly), p.Title, p.AuthorUsername)
		}
		return nil
	},
}

var postsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a post",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values := model.Post{Title: flagTitle, Content: flagContent}
		if flagID != "" {
			id, err := uuid.Parse(flagID)
			if err != nil {
				return fmt.Errorf("invalid --id %q", flagID)
			}
			values.ID = id
		}
		if flagDate == "" {
			values.Date = time.Now().UTC()
		} else {
			d, err := model.ParseDate(flagDate)
			if err != nil {
				return err
			}
			values.Date = d
		}

		_, s, err := newPostStore()
		if err != nil {
			return err
		}
		p, err := s.CreatePost(cmd.Context(), values)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", p.ID)
		return nil
	},
}

var postsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title, date or content of a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid post id %q", args[0])
		}
		changes, err := editChanges(cmd, id)
		if err != nil {
			return err
		}
		_, s, err := newPostStore()
		if err != nil {
			return err
		}
		p, err := s.UpdatePost(cmd.Context(), changes)
		if err != nil {
			return err
		}
		printPost(cmd.OutOrStdout(), p)
		return nil
	},
}

var postsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid post id %q", args[0])
		}
		_, s, err := newPostStore()
		if err != nil {
			return err
		}
		if err := s.DeletePost(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		return nil
	},
}

func init() {
	postsCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server base url (overrides client.base_url)")
	postsCmd.PersistentFlags().StringVar(&flagUser, "user", "", "username to act as (overrides client.username)")

	postsListCmd.Flags().IntVar(&flagPage, "page", 0, "page number (default 1)")
	postsListCmd.Flags().IntVar(&flagSize, "size", 0, "page size (default paging.default_size)")
	postsListCmd.Flags().StringVar(&flagAuthor, "author", "", "only posts by this username")

	postsCreateCmd.Flags().StringVar(&flagID, "id", "", "client-chosen post id")
	for _, c := range []*cobra.Command{postsCreateCmd, postsEditCmd} {
		c.Flags().StringVar(&flagTitle, "title", "", "post title")
		c.Flags().StringVar(&flagDate, "date", "", "post date (YYYY-MM-DD or RFC 3339)")
		c.Flags().StringVar(&flagContent, "content", "", "post body")
	}

	postsCmd.AddCommand(postsListCmd, postsGetCmd, postsSearchCmd, postsCreateCmd, postsEditCmd, postsDeleteCmd)
}

func newPostStore(opts ...store.Option) (*config.Config, *store.PostStore, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}
	s, err := buildStore(cfg, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

func buildStore(cfg *config.Config, logger zerolog.Logger, opts ...store.Option) (*store.PostStore, error) {
	if flagServer != "" {
		cfg.Client.BaseURL = flagServer
	}
	if flagUser != "" {
		cfg.Client.Username = flagUser
	}
	agent, err := client.New(client.Options{
		BaseURL:  cfg.Client.BaseURL,
		Username: cfg.Client.Username,
		Timeout:  cfg.ClientTimeout(),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	opts = append([]store.Option{store.WithPagingParams(cfg.DefaultPageParams())}, opts...)
	return store.New(agent, store.Session{Username: cfg.Client.Username}, logger, opts...), nil
}

// editChanges builds a partial update from the flags the user actually set.
func editChanges(cmd *cobra.Command, id uuid.UUID) (model.PostChanges, error) {
	c := model.PostChanges{ID: id}
	flags := cmd.Flags()
	if flags.Changed("title") {
		c.Title = &flagTitle
	}
	if flags.Changed("content") {
		c.Content = &flagContent
	}
	if flags.Changed("date") {
		d, err := model.ParseDate(flagDate)
		if err != nil {
			return c, err
		}
		c.Date = &d
	}
	if c.Empty() {
		return c, fmt.Errorf("nothing to change: set --title, --date or --content")
	}
	return c, nil
}

func printGroups(w io.Writer, s *store.PostStore) {
	groups := s.GroupedPosts()
	if len(groups) == 0 {
		fmt.Fprintln(w, "No posts.")
		return
	}
	for _, g := range groups {
		fmt.Fprintln(w, g.Date)
		for _, p := range g.Posts {
			mark := " "
			if p.IsAuthor {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s  %s (%s)\n", mark, p.ID, p.Title, p.AuthorUsername)
		}
	}
	if meta, ok := s.Pagination(); ok {
		fmt.Fprintf(w, "\nPage %d of %d (%d posts)\n", meta.CurrentPage, meta.TotalPages, meta.TotalItems)
	}
}

func printPost(w io.Writer, p *store.Post) {
	fmt.Fprintf(w, "%s\n%s by %s\n\n%s\n", p.Title, p.Date.Format(time.RFC1123), p.AuthorUsername, p.Content)
}

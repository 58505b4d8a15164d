package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guarzo/substream/common/model"
	"github.com/guarzo/substream/modules/reddit"
)

func (c *cli) popularCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "popular",
		Short: "List popular subreddits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := c.app.Reddit.PopularSubreddits(cmd.Context(), c.limit, c.after)
			if err != nil {
				return err
			}
			return c.printSubreddits(page)
		},
	}
}

func (c *cli) searchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search subreddits by name and description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.app.Reddit.SearchSubreddits(cmd.Context(), args[0], c.limit, c.after)
			if err != nil {
				return err
			}
			return c.printSubreddits(page)
		},
	}
}

func (c *cli) postsCommand() *cobra.Command {
	var sort string
	var videos bool

	cmd := &cobra.Command{
		Use:   "posts <subreddit>",
		Short: "List posts of a subreddit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sorting, err := reddit.ParseSorting(sort)
			if err != nil {
				return err
			}
			fetch := c.app.Reddit.SubredditPosts
			if videos {
				fetch = c.app.Reddit.VideoFeed
			}
			page, err := fetch(cmd.Context(), args[0], sorting, c.limit, c.after)
			if err != nil {
				return err
			}
			return c.printPosts(page)
		},
	}
	cmd.Flags().StringVar(&sort, "sort", string(reddit.SortHot), "hot, new, top or rising")
	cmd.Flags().BoolVar(&videos, "videos", false, "only playable video posts")
	return cmd
}

func (c *cli) printSubreddits(page model.Page[model.Subreddit]) error {
	if c.asJSON {
		return c.printJSON(page)
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSUBSCRIBERS\tTITLE")
	for _, s := range page.Items {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.DisplayNamePrefixed, s.Subscribers, s.Title)
	}
	c.printCursor(w, page.After)
	return w.Flush()
}

func (c *cli) printPosts(page model.Page[model.Post]) error {
	if c.asJSON {
		return c.printJSON(page)
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPS\tVIDEO\tTITLE")
	for _, p := range page.Items {
		video := ""
		if p.IsVideo() {
			video = p.Video.PlaybackURL
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.ID, p.Ups, video, p.Title)
	}
	c.printCursor(w, page.After)
	return w.Flush()
}

func (c *cli) printCursor(w *tabwriter.Writer, after string) {
	if after != "" {
		fmt.Fprintf(w, "\nnext page: --after %s\n", after)
	}
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

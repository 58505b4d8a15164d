package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/guarzo/substream/common/model"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var (
	ErrEmptySubreddit = errors.New("reddit: subreddit name is required")
	ErrEmptyQuery     = errors.New("reddit: search query is required")
)

// RedditService is the listing API the feed consumes.
type RedditService interface {
	PopularSubreddits(ctx context.Context, limit int, after string) (model.Page[model.Subreddit], error)
	SearchSubreddits(ctx context.Context, query string, limit int, after string) (model.Page[model.Subreddit], error)
	SubredditPosts(ctx context.Context, subreddit string, sorting Sorting, limit int, after string) (model.Page[model.Post], error)
	// VideoFeed is SubredditPosts filtered to playable posts. The page
	// cursor still advances over the whole listing.
	VideoFeed(ctx context.Context, subreddit string, sorting Sorting, limit int, after string) (model.Page[model.Post], error)
}

type redditService struct {
	client RedditClient
	log    zerolog.Logger
}

func NewRedditService(client RedditClient, log zerolog.Logger) RedditService {
	return &redditService{
		client: client,
		log:    log.With().Str("component", "reddit_service").Logger(),
	}
}

func (s *redditService) PopularSubreddits(ctx context.Context, limit int, after string) (model.Page[model.Subreddit], error) {
	return s.subreddits(ctx, "subreddits/popular.json", pageParams(limit, after))
}

func (s *redditService) SearchSubreddits(ctx context.Context, query string, limit int, after string) (model.Page[model.Subreddit], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.Page[model.Subreddit]{}, ErrEmptyQuery
	}
	params := pageParams(limit, after)
	params["q"] = query
	params["type"] = "sr"
	return s.subreddits(ctx, "subreddits/search.json", params)
}

func (s *redditService) SubredditPosts(ctx context.Context, subreddit string, sorting Sorting, limit int, after string) (model.Page[model.Post], error) {
	name, err := normalizeSubreddit(subreddit)
	if err != nil {
		return model.Page[model.Post]{}, err
	}
	if sorting == "" {
		sorting = SortHot
	}
	endpoint := fmt.Sprintf("r/%s/%s.json", url.PathEscape(name), sorting)

	var resp model.RedditPostsResponse
	if err := s.client.GetJSON(ctx, endpoint, &resp, pageParams(limit, after)); err != nil {
		return model.Page[model.Post]{}, err
	}

	var page model.Page[model.Post]
	if resp.Data == nil {
		return page, nil
	}
	page.After = str(resp.Data.After)
	page.Items = make([]model.Post, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		if child.Data == nil {
			continue
		}
		page.Items = append(page.Items, ToPost(child.Data))
	}
	s.log.Debug().Str("subreddit", name).Str("sorting", sorting.String()).Int("posts", len(page.Items)).Msg("fetched posts")
	return page, nil
}

func (s *redditService) VideoFeed(ctx context.Context, subreddit string, sorting Sorting, limit int, after string) (model.Page[model.Post], error) {
	page, err := s.SubredditPosts(ctx, subreddit, sorting, limit, after)
	if err != nil {
		return page, err
	}
	videos := page.Items[:0]
	for _, p := range page.Items {
		if p.IsVideo() {
			videos = append(videos, p)
		}
	}
	page.Items = videos
	return page, nil
}

func (s *redditService) subreddits(ctx context.Context, endpoint string, params map[string]string) (model.Page[model.Subreddit], error) {
	var resp model.SubredditListResponse
	if err := s.client.GetJSON(ctx, endpoint, &resp, params); err != nil {
		return model.Page[model.Subreddit]{}, err
	}
	page := model.Page[model.Subreddit]{
		Items: make([]model.Subreddit, 0, len(resp.Data.Children)),
		After: str(resp.Data.After),
	}
	for _, child := range resp.Data.Children {
		page.Items = append(page.Items, child.Data)
	}
	return page, nil
}

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func pageParams(limit int, after string) map[string]string {
	params := map[string]string{"limit": strconv.Itoa(ClampLimit(limit))}
	if after != "" {
		params["after"] = after
	}
	return params
}

// normalizeSubreddit accepts "golang", "r/golang" and "/r/golang/".
func normalizeSubreddit(name string) (string, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if strings.HasPrefix(strings.ToLower(name), "r/") {
		name = name[2:]
	}
	if name == "" {
		return "", ErrEmptySubreddit
	}
	return name, nil
}

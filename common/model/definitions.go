package model

import (
	"encoding/json"
	"time"
)

// JSONUnmarshal is the single decode entry point for Reddit payloads.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ----------------------------------------------------------------------
// Reddit wire structures (listing envelopes)
// ----------------------------------------------------------------------

// SubredditListResponse is the envelope of subreddits/popular and subreddits/search.
type SubredditListResponse struct {
	Data SubredditListData `json:"data"`
}

type SubredditListData struct {
	Children []SubredditChild `json:"children"`
	After    *string          `json:"after"`
	Before   *string          `json:"before"`
}

type SubredditChild struct {
	Kind string    `json:"kind"`
	Data Subreddit `json:"data"`
}

// Subreddit is both the wire and UI model; Reddit's subreddit payload is flat.
type Subreddit struct {
	DisplayName         string `json:"display_name"`
	DisplayNamePrefixed string `json:"display_name_prefixed"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	PublicDescription   string `json:"public_description,omitempty"`
	Subscribers         int    `json:"subscribers"`
	ActiveUserCount     *int   `json:"active_user_count,omitempty"`
	IconURL             string `json:"icon_img,omitempty"`
	BannerURL           string `json:"banner_img,omitempty"`
	Over18              bool   `json:"over18"`
}

// RedditPostsResponse is the envelope of r/{subreddit}/{sorting}.json.
type RedditPostsResponse struct {
	Data *RedditPostData `json:"data"`
}

type RedditPostData struct {
	Children []RedditPostWrapper `json:"children"`
	After    *string             `json:"after"`
	Before   *string             `json:"before"`
	Dist     *int                `json:"dist"`
}

type RedditPostWrapper struct {
	Kind string      `json:"kind"`
	Data *RedditPost `json:"data"`
}

// RedditPost mirrors the subset of the t3 payload the feed needs. Reddit omits
// or nulls most fields freely, hence the pointers.
type RedditPost struct {
	ID          *string        `json:"id"`
	Title       *string        `json:"title"`
	Author      *string        `json:"author"`
	Subreddit   *string        `json:"subreddit"`
	URL         *string        `json:"url"`
	Permalink   *string        `json:"permalink"`
	Domain      *string        `json:"domain"`
	CreatedUTC  *float64       `json:"created_utc"`
	Ups         *int           `json:"ups"`
	Downs       *int           `json:"downs"`
	NumComments *int           `json:"num_comments"`
	IsVideo     *bool          `json:"is_video"`
	IsSelf      *bool          `json:"is_self"`
	Spoiler     *bool          `json:"spoiler"`
	Over18      *bool          `json:"over_18"`
	Media       *RedditMedia   `json:"media"`
	SecureMedia *RedditMedia   `json:"secure_media"`
	Preview     *RedditPreview `json:"preview"`
	Selftext    *string        `json:"selftext"`
	Thumbnail   *string        `json:"thumbnail"`
}

type RedditMedia struct {
	Type        *string      `json:"type"`
	RedditVideo *RedditVideo `json:"reddit_video"`
}

type RedditVideo struct {
	FallbackURL *string `json:"fallback_url"`
	HLSURL      *string `json:"hls_url"`
	DashURL     *string `json:"dash_url"`
	IsGIF       *bool   `json:"is_gif"`
	Duration    *int    `json:"duration"`
	Width       *int    `json:"width"`
	Height      *int    `json:"height"`
}

type RedditPreview struct {
	Images []RedditImage `json:"images"`
}

type RedditImage struct {
	Source      *RedditImageSource  `json:"source"`
	Resolutions []RedditImageSource `json:"resolutions"`
}

type RedditImageSource struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ----------------------------------------------------------------------
// UI-facing models
// ----------------------------------------------------------------------

// Page is one slice of a listing. After is empty on the last page.
type Page[T any] struct {
	Items []T
	After string
}

// Post is the flattened post handed to the feed.
type Post struct {
	ID          string
	Title       string
	Author      string
	Subreddit   string
	URL         string
	Permalink   string
	Domain      string
	Selftext    string
	Thumbnail   string
	PreviewURL  string
	CreatedAt   time.Time
	Ups         int
	Downs       int
	NumComments int
	NSFW        bool
	Spoiler     bool
	Video       *Video
}

// IsVideo reports whether the feed player can play this post.
func (p Post) IsVideo() bool {
	return p.Video != nil && p.Video.PlaybackURL != ""
}

// Video describes a playable stream. PlaybackURL is the preferred source.
type Video struct {
	PlaybackURL string
	FallbackURL string
	HLSURL      string
	DashURL     string
	Duration    time.Duration
	Width       int
	Height      int
	IsGIF       bool
}

package reddit

import (
	"html"
	"strings"
	"time"

	"github.com/guarzo/substream/common/model"
)

// ToPost flattens a wire post. Missing fields become zero values.
func ToPost(p *model.RedditPost) model.Post {
	post := model.Post{
		ID:          str(p.ID),
		Title:       str(p.Title),
		Author:      str(p.Author),
		Subreddit:   str(p.Subreddit),
		URL:         str(p.URL),
		Permalink:   str(p.Permalink),
		Domain:      str(p.Domain),
		Selftext:    str(p.Selftext),
		Thumbnail:   str(p.Thumbnail),
		PreviewURL:  previewURL(p.Preview),
		Ups:         num(p.Ups),
		Downs:       num(p.Downs),
		NumComments: num(p.NumComments),
		NSFW:        flag(p.Over18),
		Spoiler:     flag(p.Spoiler),
		Video:       extractVideo(p),
	}
	if p.CreatedUTC != nil {
		post.CreatedAt = time.Unix(int64(*p.CreatedUTC), 0).UTC()
	}
	return post
}

// VideoURL picks the stream the player should open, or "" when the post has
// nothing playable. Fallback MP4 beats HLS beats DASH beats a direct file link;
// media wins over secure_media at each step.
func VideoURL(p *model.RedditPost) string {
	media, secure := redditVideo(p.Media), redditVideo(p.SecureMedia)
	pick := []func(*model.RedditVideo) *string{
		func(v *model.RedditVideo) *string { return v.FallbackURL },
		func(v *model.RedditVideo) *string { return v.HLSURL },
		func(v *model.RedditVideo) *string { return v.DashURL },
	}
	for _, field := range pick {
		for _, v := range []*model.RedditVideo{media, secure} {
			if v == nil {
				continue
			}
			if u := str(field(v)); u != "" {
				return u
			}
		}
	}
	if u := str(p.URL); isDirectVideo(u) {
		return u
	}
	return ""
}

func extractVideo(p *model.RedditPost) *model.Video {
	playback := VideoURL(p)
	if playback == "" {
		return nil
	}
	video := &model.Video{PlaybackURL: playback}

	v := redditVideo(p.Media)
	if v == nil {
		v = redditVideo(p.SecureMedia)
	}
	if v != nil {
		video.FallbackURL = str(v.FallbackURL)
		video.HLSURL = str(v.HLSURL)
		video.DashURL = str(v.DashURL)
		video.Duration = time.Duration(num(v.Duration)) * time.Second
		video.Width = num(v.Width)
		video.Height = num(v.Height)
		video.IsGIF = flag(v.IsGIF)
	}
	return video
}

func redditVideo(m *model.RedditMedia) *model.RedditVideo {
	if m == nil {
		return nil
	}
	return m.RedditVideo
}

// isDirectVideo excludes YouTube, which the player cannot open.
func isDirectVideo(u string) bool {
	if u == "" || isYouTube(u) {
		return false
	}
	path := strings.ToLower(u)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".mp4") || strings.HasSuffix(path, ".webm")
}

func isYouTube(u string) bool {
	return strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be")
}

func previewURL(p *model.RedditPreview) string {
	if p == nil || len(p.Images) == 0 || p.Images[0].Source == nil {
		return ""
	}
	return html.UnescapeString(p.Images[0].Source.URL)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func flag(b *bool) bool {
	return b != nil && *b
}

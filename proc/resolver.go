package proc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/leeineian/chorus/sys"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const defaultTitle = "Unknown Title"

// Resolver turns a user query or URL into a playable Track.
type Resolver interface {
	Resolve(ctx context.Context, query string) (Track, error)
}

// ResolveError reports why a query could not be turned into a Track.
type ResolveError struct {
	Query string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNoResults  = errors.New("no results")
)

// SearchFunc maps a free-text query to a page URL.
type SearchFunc func(ctx context.Context, query string) (string, error)

// ExtractFunc fetches the stream metadata of a page URL.
type ExtractFunc func(ctx context.Context, pageURL string) (Track, error)

// Search is one named search backend.
type Search struct {
	Name string
	Fn   SearchFunc
}

// YTDLPResolver resolves URLs with yt-dlp directly and free text through
// YouTube Music, YouTube and finally yt-dlp's own search.
type YTDLPResolver struct {
	searches []Search
	extract  ExtractFunc
}

func NewYTDLPResolver() *YTDLPResolver {
	return &YTDLPResolver{
		searches: []Search{
			{"ytmusic", searchYTMusic},
			{"youtube", searchYouTube},
			{"yt-dlp", searchYTDLP},
		},
		extract: ytdlpExtract,
	}
}

// WithSearch replaces the search chain, in priority order.
func (r *YTDLPResolver) WithSearch(searches ...Search) *YTDLPResolver {
	r.searches = searches
	return r
}

// WithExtract replaces the metadata extractor.
func (r *YTDLPResolver) WithExtract(fn ExtractFunc) *YTDLPResolver {
	r.extract = fn
	return r
}

func (r *YTDLPResolver) Resolve(ctx context.Context, query string) (Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Track{}, &ResolveError{Query: query, Err: ErrEmptyQuery}
	}

	page := query
	if !IsURL(query) {
		found, err := r.search(ctx, query)
		if err != nil {
			return Track{}, &ResolveError{Query: query, Err: err}
		}
		page = found
	}

	t, err := r.extract(ctx, page)
	if err != nil {
		return Track{}, &ResolveError{Query: query, Err: err}
	}
	if t.Source == "" {
		return Track{}, &ResolveError{Query: query, Err: ErrNoResults}
	}
	if t.Title == "" {
		t.Title = defaultTitle
	}
	if t.WebpageURL == "" {
		t.WebpageURL = page
	}
	t.Query = query
	sys.LogResolver(sys.MsgResolverFound, query, t.WebpageURL)
	return t, nil
}

func (r *YTDLPResolver) search(ctx context.Context, query string) (string, error) {
	var lastErr error = ErrNoResults
	for _, s := range r.searches {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		sys.LogDebug(sys.MsgResolverSearching, s.Name, query)
		u, err := s.Fn(ctx, query)
		if err == nil && u != "" {
			return u, nil
		}
		if err == nil {
			err = ErrNoResults
		}
		sys.LogResolver(sys.MsgResolverFallback, s.Name, query, err)
		lastErr = err
	}
	return "", lastErr
}

// IsURL reports whether q looks like an http(s) link rather than search text.
func IsURL(q string) bool {
	u, err := url.Parse(strings.TrimSpace(q))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ===========================
// Search backends
// ===========================

func searchYTMusic(ctx context.Context, query string) (string, error) {
	type result struct {
		id  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			ch <- result{err: err}
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID != "" {
				ch <- result{id: v.VideoID}
				return
			}
		}
		ch <- result{err: ErrNoResults}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		return "https://music.youtube.com/watch?v=" + res.id, nil
	}
}

func searchYouTube(ctx context.Context, query string) (string, error) {
	r, err := ytsearch.NewClient(nil).Search(ctx, query)
	if err != nil {
		return "", err
	}
	for _, v := range r.Results {
		if v.VideoID != "" {
			return "https://www.youtube.com/watch?v=" + v.VideoID, nil
		}
	}
	return "", ErrNoResults
}

func searchYTDLP(ctx context.Context, query string) (string, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s").
		PlaylistItems("1").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "ytsearch1:"+query)
	if err != nil {
		return "", err
	}
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if l = strings.TrimSpace(l); l != "" && l != "NA" {
			return l, nil
		}
	}
	return "", ErrNoResults
}

// ===========================
// yt-dlp extraction
// ===========================

const extractTemplate = "%(url)s\t%(title)s\t%(webpage_url)s\t%(duration)s"

func ytdlpExtract(ctx context.Context, pageURL string) (Track, error) {
	res, err := ytdlp.New().
		Print(extractTemplate).
		Format("bestaudio/best").
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", pageURL)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return Track{}, fmt.Errorf("DRM protected: %w", err)
		}
		return Track{}, err
	}
	return parseExtractOutput(res.Stdout)
}

// parseExtractOutput reads the first line printed with extractTemplate.
// yt-dlp prints "NA" for fields it could not fill.
func parseExtractOutput(out string) (Track, error) {
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(strings.TrimRight(l, "\r"), "\t")
		if len(ps) < 4 || ps[0] == "" || ps[0] == "NA" {
			continue
		}
		t := Track{Source: ps[0], Title: ps[1], WebpageURL: ps[2]}
		if t.Title == "NA" {
			t.Title = ""
		}
		if t.WebpageURL == "NA" {
			t.WebpageURL = ""
		}
		if d, err := time.ParseDuration(ps[3] + "s"); err == nil {
			t.Duration = d
		}
		return t, nil
	}
	return Track{}, errors.New("failed to parse metadata")
}

// EnsureYTDLP locates yt-dlp, downloading it into the user cache when it is missing.
func EnsureYTDLP(ctx context.Context) error {
	sys.LogResolver(sys.MsgResolverInstall)
	installed, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	sys.LogResolver(sys.MsgResolverInstalled, installed.Executable, installed.Version)
	return nil
}

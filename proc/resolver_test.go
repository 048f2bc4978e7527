package proc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestResolve_URLSkipsSearch(t *testing.T) {
	searched := false
	var extracted string
	r := NewYTDLPResolver().
		WithSearch(Search{"never", func(context.Context, string) (string, error) {
			searched = true
			return "", nil
		}}).
		WithExtract(func(_ context.Context, page string) (Track, error) {
			extracted = page
			return Track{Source: "http://x/a.mp3", Title: "A"}, nil
		})

	tr, err := r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if searched {
		t.Error("Expected URL queries not to be searched")
	}
	if extracted != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("Expected URL to be extracted directly, got %q", extracted)
	}
	if tr.WebpageURL != extracted || tr.Query != extracted {
		t.Errorf("Expected webpage and query to default to the URL, got %+v", tr)
	}
}

func TestResolve_SearchFallsBackInOrder(t *testing.T) {
	var order []string
	r := NewYTDLPResolver().
		WithSearch(
			Search{"first", func(context.Context, string) (string, error) {
				order = append(order, "first")
				return "", errors.New("offline")
			}},
			Search{"second", func(context.Context, string) (string, error) {
				order = append(order, "second")
				return "", nil
			}},
			Search{"third", func(_ context.Context, q string) (string, error) {
				order = append(order, "third")
				return "https://www.youtube.com/watch?v=abc", nil
			}},
		).
		WithExtract(func(_ context.Context, page string) (Track, error) {
			return Track{Source: "http://x/a.mp3", Title: "Song", WebpageURL: page}, nil
		})

	tr, err := r.Resolve(context.Background(), "  never gonna give you up ")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "first,second,third" {
		t.Errorf("Expected searches in priority order, got %v", order)
	}
	if tr.WebpageURL != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("Unexpected webpage %q", tr.WebpageURL)
	}
	if tr.Query != "never gonna give you up" {
		t.Errorf("Expected trimmed query to be recorded, got %q", tr.Query)
	}
}

func TestResolve_AllSearchesFail(t *testing.T) {
	boom := errors.New("quota exceeded")
	r := NewYTDLPResolver().WithSearch(Search{"only", func(context.Context, string) (string, error) {
		return "", boom
	}})

	_, err := r.Resolve(context.Background(), "some song")
	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected ResolveError, got %v", err)
	}
	if rerr.Query != "some song" || !errors.Is(err, boom) {
		t.Errorf("Expected query and last reason, got %+v", rerr)
	}
	if !strings.Contains(err.Error(), "some song") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("Expected message to mention query and reason, got %q", err)
	}
}

func TestResolve_DefaultTitle(t *testing.T) {
	r := NewYTDLPResolver().WithExtract(func(context.Context, string) (Track, error) {
		return Track{Source: "http://x/a.mp3"}, nil
	})

	tr, err := r.Resolve(context.Background(), "http://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Title != "Unknown Title" {
		t.Errorf("Expected default title, got %q", tr.Title)
	}
}

func TestResolve_ExtractFailures(t *testing.T) {
	tests := []struct {
		name    string
		extract ExtractFunc
		want    error
	}{
		{"error", func(context.Context, string) (Track, error) { return Track{}, ErrNoResults }, ErrNoResults},
		{"no source", func(context.Context, string) (Track, error) { return Track{Title: "x"}, nil }, ErrNoResults},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewYTDLPResolver().WithExtract(tt.extract)
			_, err := r.Resolve(context.Background(), "https://example.com/v")
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolve_EmptyQuery(t *testing.T) {
	_, err := NewYTDLPResolver().Resolve(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestResolve_CancelledBeforeSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewYTDLPResolver().WithSearch(Search{"never", func(context.Context, string) (string, error) {
		t.Error("search should not run after cancellation")
		return "", nil
	}})

	if _, err := r.Resolve(ctx, "song"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParseExtractOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    Track
		wantErr bool
	}{
		{
			name: "full line",
			out:  "http://x/a.mp3\tNever Gonna Give You Up\thttps://www.youtube.com/watch?v=dQw4w9WgXcQ\t213\n",
			want: Track{Source: "http://x/a.mp3", Title: "Never Gonna Give You Up", WebpageURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Duration: 213 * time.Second},
		},
		{
			name: "missing fields",
			out:  "http://x/a.mp3\tNA\tNA\tNA",
			want: Track{Source: "http://x/a.mp3"},
		},
		{
			name: "fractional duration",
			out:  "http://x/a.mp3\tT\thttp://p\t12.5",
			want: Track{Source: "http://x/a.mp3", Title: "T", WebpageURL: "http://p", Duration: 12500 * time.Millisecond},
		},
		{
			name: "skips unusable lines",
			out:  "garbage\nNA\tT\tP\t1\nhttp://x/b.mp3\tB\thttp://p\t1",
			want: Track{Source: "http://x/b.mp3", Title: "B", WebpageURL: "http://p", Duration: time.Second},
		},
		{name: "empty", out: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExtractOutput(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	tests := map[string]bool{
		"https://youtu.be/abc":     true,
		"http://example.com/a.mp3": true,
		"never gonna give you up":  false,
		"ftp://example.com/a.mp3":  false,
		"https://":                 false,
		"youtube.com/watch?v=abc":  false,
	}
	for in, want := range tests {
		if got := IsURL(in); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

package identity

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

// PageInfo is what a public t.me profile page reveals.
type PageInfo struct {
	DisplayName string
	AvatarURL   string
}

// PageParser scrapes public t.me profile pages for names and avatars the
// profile service did not return.
type PageParser struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	log        *zap.Logger
}

func NewPageParser(baseURL string, timeoutMS, maxRetries int, log *zap.Logger) *PageParser {
	if baseURL == "" {
		baseURL = "https://t.me"
	}
	return &PageParser{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		maxRetries: maxRetries,
		log:        log,
	}
}

// Fetch loads the page for username. Invalid usernames are rejected without
// a request.
func (p *PageParser) Fetch(ctx context.Context, username string) (*PageInfo, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}
	pageURL := fmt.Sprintf("%s/%s", p.baseURL, username)

	var doc *goquery.Document
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, pageURL)
			continue
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return parsePage(doc), nil
}

func parsePage(doc *goquery.Document) *PageInfo {
	info := &PageInfo{}

	info.DisplayName = strings.TrimSpace(doc.Find(".tgme_page_title span").First().Text())
	if info.DisplayName == "" {
		if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			info.DisplayName = strings.TrimSpace(v)
		}
	}
	// t.me renders "Telegram: Contact @x" for unknown users
	if strings.HasPrefix(info.DisplayName, "Telegram:") {
		info.DisplayName = ""
	}

	if src, ok := doc.Find("img.tgme_page_photo_image").Attr("src"); ok {
		info.AvatarURL = strings.TrimSpace(src)
	}
	if info.AvatarURL == "" {
		if v, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && !strings.Contains(v, "telegram.org/img/t_logo") {
			info.AvatarURL = strings.TrimSpace(v)
		}
	}
	return info
}

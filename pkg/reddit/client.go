package reddit

import (
	"context"
	"fmt"
	"net/url"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/logger"
)

const defaultBaseURL = "https://www.reddit.com"

// maxPageSize is the largest page the listing endpoints will serve.
const maxPageSize = 100

// Client pages through the public JSON listing endpoints. All transport
// concerns (rate limiting, retries, 429 handling) live in the fetcher.
type Client struct {
	fetcher *fetcher.Fetcher
	baseURL string
	logger  logger.Logger
}

// NewClient creates a listing client on top of the shared fetcher.
func NewClient(f *fetcher.Fetcher, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		fetcher: f,
		baseURL: defaultBaseURL,
		logger:  log,
	}
}

// SetBaseURL overrides the endpoint, used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

type listingEnvelope struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
		After string `json:"after"`
	} `json:"data"`
}

// FetchPage retrieves one page of the source's listing. Pass the cursor
// returned by the previous call as after, or "" for the first page. The
// returned cursor is "" when the listing is exhausted.
func (c *Client) FetchPage(ctx context.Context, src Source, after string, count int) ([]Post, string, error) {
	listingURL, err := c.buildURL(src, after, count)
	if err != nil {
		return nil, "", err
	}

	var envelope listingEnvelope
	if err := c.fetcher.FetchJSON(ctx, listingURL, &envelope); err != nil {
		return nil, "", errors.Wrap(errors.TypeListingUnavailable,
			fmt.Sprintf("failed to fetch listing for %s", src.Label()), err)
	}

	posts := make([]Post, 0, len(envelope.Data.Children))
	for _, child := range envelope.Data.Children {
		post := child.Data
		post.SourceKind = src.Kind
		post.SourceName = src.Name
		posts = append(posts, post)
	}

	c.logger.DebugWithFields("fetched listing page", map[string]interface{}{
		"source": src.Label(),
		"posts":  len(posts),
		"after":  envelope.Data.After,
	})

	return posts, envelope.Data.After, nil
}

func (c *Client) buildURL(src Source, after string, count int) (string, error) {
	if src.Name == "" {
		return "", errors.New(errors.TypeListingUnavailable, "source name is empty")
	}
	if count <= 0 || count > maxPageSize {
		count = maxPageSize
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", count))
	if after != "" {
		query.Set("after", after)
	}

	var path string
	switch src.Kind {
	case SourceUser:
		path = fmt.Sprintf("/user/%s/submitted.json", url.PathEscape(src.Name))
		query.Set("sort", "new")
	default:
		sort := src.Sort
		if sort == "" {
			sort = "hot"
		}
		path = fmt.Sprintf("/r/%s/%s.json", url.PathEscape(src.Name), sort)
		if sort == "top" {
			timeFilter := src.TimeFilter
			if timeFilter == "" {
				timeFilter = "all"
			}
			query.Set("t", timeFilter)
		}
	}

	return c.baseURL + path + "?" + query.Encode(), nil
}

package newsfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/greenaudit/greenwash_backend/config"
	"github.com/sirupsen/logrus"
)

const (
	NoAPIKeyDigest    = "No external news data available (API key not configured)."
	NoResultsDigest   = "No relevant news articles found for this company."
	resultsPerQuery   = 3
	maxResults        = 10
	requestedPerQuery = 5
)

var queryTemplates = []string{
	"%s environmental violations news",
	"%s pollution fines",
	"%s sustainability controversy",
}

// Client searches Serper for adverse environmental coverage of a company.
type Client struct {
	httpc  *resty.Client
	apiKey string
	logger logrus.FieldLogger
}

type Article struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type searchResponse struct {
	Organic []Article `json:"organic"`
}

func New(cfg config.NewsConfig, logger logrus.FieldLogger) *Client {
	httpc := resty.New()
	httpc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	httpc.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpc.SetTimeout(timeout)
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	httpc.SetLogger(logger)
	return &Client{httpc: httpc, apiKey: strings.TrimSpace(cfg.APIKey), logger: logger}
}

// Search runs every query and formats up to ten articles. A missing key or an empty result set
// is reported in the digest text; an error is returned only when every query failed.
func (c *Client) Search(ctx context.Context, companyName string) (string, error) {
	if c.apiKey == "" {
		return NoAPIKeyDigest, nil
	}
	var articles []Article
	var errs []error
	for _, tmpl := range queryTemplates {
		found, err := c.query(ctx, fmt.Sprintf(tmpl, companyName))
		if err != nil {
			c.logger.WithFields(logrus.Fields{"company": companyName, "query": tmpl}).Warn("news search query failed: ", err)
			errs = append(errs, err)
			continue
		}
		if len(found) > resultsPerQuery {
			found = found[:resultsPerQuery]
		}
		articles = append(articles, found...)
	}
	if len(errs) == len(queryTemplates) {
		return "", errors.Join(errs...)
	}
	return FormatDigest(articles), nil
}

func (c *Client) query(ctx context.Context, q string) ([]Article, error) {
	var out searchResponse
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.apiKey).
		SetBody(searchRequest{Q: q, Num: requestedPerQuery}).
		SetResult(&out).
		Post("/search")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serper status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return out.Organic, nil
}

func FormatDigest(articles []Article) string {
	if len(articles) == 0 {
		return NoResultsDigest
	}
	if len(articles) > maxResults {
		articles = articles[:maxResults]
	}
	parts := make([]string, 0, len(articles))
	for i, a := range articles {
		parts = append(parts, fmt.Sprintf("%d. %s\n   %s\n   Source: %s", i+1, a.Title, a.Snippet, a.Link))
	}
	return strings.Join(parts, "\n\n")
}

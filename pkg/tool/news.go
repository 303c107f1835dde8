package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// NewsConfig configures the NewsAPI article search tool.
type NewsConfig struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewNewsSearch creates the search_news tool backed by NewsAPI. A category
// narrows the search to top headlines in that category.
func NewNewsSearch(cfg NewsConfig) Definition {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return Definition{
		Name:        "search_news",
		Description: "Search for news articles on any topic. Returns headlines, sources, descriptions, and URLs.",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "Search query for news articles (e.g., 'artificial intelligence', 'climate change')", Required: true},
			{Name: "category", Type: "string", Description: "Optional category: business, entertainment, health, science, sports, technology"},
			{Name: "limit", Type: "integer", Description: "Maximum number of articles to return (default: 5, max: 10)", Default: 5},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query parameter is required")
			}
			category := stringArg(args, "category", "")
			limit := intArg(args, "limit", 5)
			if limit > 10 {
				limit = 10
			}

			endpoint := baseURL + "/everything"
			params := url.Values{}
			params.Set("q", query)
			params.Set("pageSize", fmt.Sprintf("%d", limit))
			params.Set("sortBy", "relevancy")
			if category != "" {
				endpoint = baseURL + "/top-headlines"
				params.Set("category", category)
				params.Del("sortBy")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-Api-Key", cfg.APIKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, Transient("news request failed", err)
			}
			defer resp.Body.Close()

			if transientStatus(resp.StatusCode) {
				return nil, Transient(fmt.Sprintf("newsapi returned status %d", resp.StatusCode), nil)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode)
			}

			var payload struct {
				TotalResults int `json:"totalResults"`
				Articles     []struct {
					Title       string `json:"title"`
					Description string `json:"description"`
					URL         string `json:"url"`
					PublishedAt string `json:"publishedAt"`
					Source      struct {
						Name string `json:"name"`
					} `json:"source"`
				} `json:"articles"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return nil, fmt.Errorf("failed to decode news response: %w", err)
			}

			articles := make([]map[string]interface{}, 0, len(payload.Articles))
			for _, a := range payload.Articles {
				articles = append(articles, map[string]interface{}{
					"title":        a.Title,
					"description":  a.Description,
					"source":       a.Source.Name,
					"url":          a.URL,
					"published_at": a.PublishedAt,
				})
			}

			return map[string]interface{}{
				"total_results": payload.TotalResults,
				"articles":      articles,
			}, nil
		},
	}
}

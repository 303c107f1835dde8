package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GitHubConfig configures the GitHub repository search tool.
type GitHubConfig struct {
	Token   string
	BaseURL string
	Client  *http.Client
}

// NewGitHubSearch creates the github_search tool. It searches repositories by
// query and returns stars, description and language for each match.
func NewGitHubSearch(cfg GitHubConfig) Definition {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return Definition{
		Name:        "github_search",
		Description: "Search GitHub repositories by query, get repository details including stars, description, and language",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "Search query for repositories (e.g., 'python web framework', 'machine learning')", Required: true},
			{Name: "sort", Type: "string", Description: "Sort by 'stars', 'forks', or 'updated' (default: 'stars')"},
			{Name: "limit", Type: "integer", Description: "Maximum number of results to return (default: 5)", Default: 5},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query parameter is required")
			}
			sort := stringArg(args, "sort", "stars")
			limit := intArg(args, "limit", 5)

			params := url.Values{}
			params.Set("q", query)
			params.Set("sort", sort)
			params.Set("order", "desc")
			params.Set("per_page", fmt.Sprintf("%d", limit))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/search/repositories?"+params.Encode(), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/vnd.github.v3+json")
			if cfg.Token != "" {
				req.Header.Set("Authorization", "token "+cfg.Token)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, Transient("github request failed", err)
			}
			defer resp.Body.Close()

			if transientStatus(resp.StatusCode) {
				return nil, Transient(fmt.Sprintf("github returned status %d", resp.StatusCode), nil)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("github returned status %d", resp.StatusCode)
			}

			var payload struct {
				TotalCount int `json:"total_count"`
				Items      []struct {
					FullName    string `json:"full_name"`
					Description string `json:"description"`
					Stars       int    `json:"stargazers_count"`
					Forks       int    `json:"forks_count"`
					Language    string `json:"language"`
					HTMLURL     string `json:"html_url"`
				} `json:"items"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return nil, fmt.Errorf("failed to decode github response: %w", err)
			}

			repositories := make([]map[string]interface{}, 0, len(payload.Items))
			for _, item := range payload.Items {
				repositories = append(repositories, map[string]interface{}{
					"name":        item.FullName,
					"description": item.Description,
					"stars":       item.Stars,
					"forks":       item.Forks,
					"language":    item.Language,
					"url":         item.HTMLURL,
				})
			}

			return map[string]interface{}{
				"total_count":  payload.TotalCount,
				"repositories": repositories,
			}, nil
		},
	}
}

func stringArg(args map[string]interface{}, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intArg(args map[string]interface{}, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

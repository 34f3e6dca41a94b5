package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/desktop"
)

const (
	defaultSearchResults = 5
	summaryTitles        = 3
)

// WebExecutor handles open_website and search_web.
type WebExecutor struct {
	logger     *zap.Logger
	opener     desktop.URLOpener
	searcher   Searcher
	maxResults int
}

// NewWebExecutor creates the executor. A nil opener or searcher disables the
// corresponding action.
func NewWebExecutor(logger *zap.Logger, opener desktop.URLOpener, searcher Searcher, maxResults int) *WebExecutor {
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	return &WebExecutor{
		logger:     logger.Named("web_executor"),
		opener:     opener,
		searcher:   searcher,
		maxResults: maxResults,
	}
}

func (e *WebExecutor) Execute(ctx context.Context, action Action) (string, error) {
	switch p := action.Params.(type) {
	case OpenWebsiteParams:
		if e.opener == nil {
			return "", newExecutionError(ErrCodeFeatureDisabled, action.Name, errors.New("browser launching is disabled"))
		}
		url := desktop.NormalizeURL(p.URL)
		if url == "" {
			return "", invalidParams(action.Name, "open_website requires 'url'")
		}
		if err := e.opener.Open(ctx, url); err != nil {
			return "", fmt.Errorf("Failed to open %s: %w", url, err)
		}
		return "Opened website " + url, nil

	case SearchWebParams:
		if e.searcher == nil {
			return "", newExecutionError(ErrCodeFeatureDisabled, action.Name, errors.New("web search is disabled"))
		}
		query := strings.TrimSpace(p.Query)
		if query == "" {
			return "", invalidParams(action.Name, "search_web requires 'query'")
		}
		limit := p.MaxResults
		if limit <= 0 || limit > e.maxResults {
			limit = e.maxResults
		}

		results, err := e.searcher.Search(ctx, query, limit)
		if err != nil {
			return "", fmt.Errorf("Failed to search for %s: %w", query, err)
		}
		e.logger.Debug("Web search complete", zap.String("query", query), zap.Int("results", len(results)))

		if len(results) == 0 {
			return fmt.Sprintf("Searched for: %s. No results found.", query), nil
		}
		titles := make([]string, 0, summaryTitles)
		for i, r := range results {
			if i == summaryTitles {
				break
			}
			titles = append(titles, fmt.Sprintf("%d. %s", i+1, r.Title))
		}
		return fmt.Sprintf("Searched for: %s. Top results: %s", query, strings.Join(titles, "; ")), nil

	default:
		return "", unexpectedParams(action)
	}
}

package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const dashboardsPath = "/dashboards"

// dashboardPageSize is the page size requested when listing dashboards.
const dashboardPageSize = 100

// Dashboard is a catalogue entry of the dashboards API.
type Dashboard struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FolderID    string `json:"folderId"`
}

// ListDashboards returns every dashboard visible to the credential,
// following continuation tokens.
func (c *Client) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	var all []Dashboard
	token := ""

	for {
		params := url.Values{"limit": {strconv.Itoa(dashboardPageSize)}}
		if token != "" {
			params.Set("token", token)
		}

		resp, err := c.Get(ctx, dashboardsPath, WithParams(params))
		if err != nil {
			return nil, fmt.Errorf("list dashboards: %w", err)
		}

		var page struct {
			Dashboards []Dashboard `json:"dashboards"`
			Next       string      `json:"next"`
		}
		if err := resp.DecodeJSON(&page); err != nil {
			return nil, fmt.Errorf("list dashboards: %w", err)
		}

		all = append(all, page.Dashboards...)
		if page.Next == "" || page.Next == token {
			break
		}
		token = page.Next
	}

	c.logger.Debug().Int("count", len(all)).Msg("Listed dashboards")
	return all, nil
}

// GetDashboard returns a single dashboard.
func (c *Client) GetDashboard(ctx context.Context, id string) (*Dashboard, error) {
	resp, err := c.Get(ctx, dashboardsPath+"/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var d Dashboard
	if err := resp.DecodeJSON(&d); err != nil {
		return nil, fmt.Errorf("dashboard %s: %w", id, err)
	}
	return &d, nil
}

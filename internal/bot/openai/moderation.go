package openai

import (
	"context"
	"sort"
)

type oaiModerationRequest struct {
	Input string `json:"input"`
}

type oaiModerationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
	Error *oaiError `json:"error,omitempty"`
}

// CheckModeration reports whether the text is safe to act on. The check
// fails open: when the moderation endpoint itself errors, the text is treated
// as safe so a moderation outage never blocks legitimate use. Flagged
// category names are logged for audit.
func (c *Client) CheckModeration(ctx context.Context, text string) bool {
	var resp oaiModerationResponse
	if err := c.postJSON(ctx, "/moderations", oaiModerationRequest{Input: text}, &resp); err != nil {
		c.logger.Warn("moderation check failed; allowing text", "err", err)
		return true
	}
	if resp.Error != nil || len(resp.Results) == 0 {
		c.logger.Warn("moderation returned no verdict; allowing text")
		return true
	}

	result := resp.Results[0]
	if result.Flagged {
		var flagged []string
		for category, hit := range result.Categories {
			if hit {
				flagged = append(flagged, category)
			}
		}
		sort.Strings(flagged)
		c.logger.Warn("unsafe text detected", "categories", flagged)
	}
	return !result.Flagged
}

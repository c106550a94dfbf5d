package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	imageSubscribersOnly = "Генерация изображений доступна только для пользователей с подпиской. Оформи подписку!"
	imageRateLimited     = "Превышен лимит запросов на генерацию изображений. Попробуй позже."
)

// enhanceThreshold is the prompt length, in characters, below which the full
// set of quality qualifiers is appended.
const enhanceThreshold = 20

// qualityTerms are the keywords whose presence (case-insensitive) means the
// prompt already asks for quality and needs no extra qualifier.
var qualityTerms = []string{"quality", "detailed", "4k", "hd", "высокое качество", "детализированное"}

type oaiImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type oaiImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *oaiError `json:"error,omitempty"`
}

// GenerateImage produces an image for the prompt and returns its URL.
// Subscription gating is re-checked here even though the pipeline already
// gates the image flow. On failure the second return value is a
// human-readable reason, never a raw error.
func (c *Client) GenerateImage(ctx context.Context, userID int64, prompt, size string) (bool, string) {
	subscribed, err := c.subs.IsSubscribed(ctx, userID)
	if err != nil || !subscribed {
		if err != nil {
			c.logger.Error("image generation subscription check failed", "user_id", userID, "err", err)
		}
		return false, imageSubscribersOnly
	}

	if size == "" {
		size = c.cfg.ImageSize
	}
	enhanced := enhanceImagePrompt(prompt)

	c.logger.Info("generating image", "user_id", userID, "prompt", prompt)
	body := oaiImageRequest{
		Model:   c.cfg.ImageModel,
		Prompt:  enhanced,
		N:       1,
		Size:    size,
		Quality: c.cfg.ImageQuality,
	}

	var resp oaiImageResponse
	if err := c.postJSON(ctx, "/images/generations", body, &resp); err != nil {
		if errors.Is(err, errRateLimited) {
			c.logger.Error("image generation rate limit exceeded", "user_id", userID)
			return false, imageRateLimited
		}
		c.logger.Error("image generation failed", "user_id", userID, "err", err)
		return false, fmt.Sprintf("Ошибка при генерации изображения: %v", err)
	}
	if resp.Error != nil {
		c.logger.Error("image generation API error", "user_id", userID, "type", resp.Error.Type, "message", resp.Error.Message)
		return false, fmt.Sprintf("Ошибка при генерации изображения: %s", resp.Error.Message)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		c.logger.Error("image generation returned no data", "user_id", userID)
		return false, "Ошибка при генерации изображения: пустой ответ сервера"
	}

	c.logger.Info("image generated", "user_id", userID)
	return true, resp.Data[0].URL
}

// enhanceImagePrompt appends quality qualifiers for better results: short
// prompts get the full set, longer ones only a generic qualifier unless a
// quality keyword is already present.
func enhanceImagePrompt(prompt string) string {
	if utf8.RuneCountInString(prompt) < enhanceThreshold {
		return prompt + ", high quality, detailed, 4k, realistic"
	}

	lower := strings.ToLower(prompt)
	for _, term := range qualityTerms {
		if strings.Contains(lower, term) {
			return prompt
		}
	}
	return prompt + ", high quality"
}

package clarifai

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/lemon-mint/structllm/directory"
)

const (
	listPageSize = 100
	listMaxPages = 50
)

// ListModels lists every model visible to token whose metadata matches
// query, across all apps. An empty token falls back to the client's key.
func (c *ClarifaiClient) ListModels(ctx context.Context, token string, query string) ([]directory.ModelInfo, error) {
	var models []directory.ModelInfo

	for page := 1; page <= listMaxPages; page++ {
		params := url.Values{}
		if query != "" {
			params.Set("query", query)
		}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(listPageSize))

		var n int
		err := c.api.do(ctx, http.MethodGet, "/models", params, token, nil, func(v *fastjson.Value) error {
			items := v.GetArray("models")
			n = len(items)
			for _, m := range items {
				models = append(models, directory.ModelInfo{
					ID:     string(m.GetStringBytes("id")),
					UserID: string(m.GetStringBytes("user_id")),
					AppID:  string(m.GetStringBytes("app_id")),
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if n < listPageSize {
			break
		}
	}

	c.logger.Debug("models listed", zap.String("query", query), zap.Int("count", len(models)))
	return models, nil
}

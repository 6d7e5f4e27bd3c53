package clarifai

import (
	"context"
	"net/http"
	"net/url"

	"github.com/valyala/fastjson"

	"github.com/lemon-mint/structllm/retrieval"
)

// Search ranks the text inputs of the client's app against query.
func (c *ClarifaiClient) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Hit, error) {
	if c.userID == "" || c.appID == "" {
		return nil, ErrScopeRequired
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	q := searchQuery{
		Ranks: []rank{{Annotation: annotation{Data: apiData{Text: &apiText{Raw: query}}}}},
	}
	for _, t := range opts.InputTypes {
		if t == retrieval.InputTypeText {
			q.Filters = append(q.Filters, filter{Input: apiInput{Data: apiData{Text: &apiText{}}}})
		}
	}

	req := searchRequest{
		Searches:   []search{{Query: q}},
		Pagination: pagination{Page: 1, PerPage: topK},
	}

	path := "/users/" + url.PathEscape(c.userID) + "/apps/" + url.PathEscape(c.appID) + "/annotations/searches"

	var hits []retrieval.Hit
	err := c.api.do(ctx, http.MethodPost, path, nil, "", req, func(v *fastjson.Value) error {
		for _, h := range v.GetArray("hits") {
			hits = append(hits, retrieval.Hit{
				ID:    string(h.GetStringBytes("input", "id")),
				URL:   string(h.GetStringBytes("input", "data", "text", "url")),
				Score: h.GetFloat64("score"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

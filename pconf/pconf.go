package pconf

import (
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type GeneralConfig struct {
	APIKey  string
	BaseURL string

	// Clarifai scope, used by search and by models addressed without a URL.
	UserID string
	AppID  string

	ProjectID string
	Location  string

	HTTPClient *http.Client
	Logger     *zap.Logger

	GoogleClientOptions []option.ClientOption
}

func (GeneralConfig) String() string {
	return "<GeneralConfig [REDACTED]>"
}

type Config interface {
	Apply(g *GeneralConfig) error
}

// Resolve applies configs in order and returns the resulting GeneralConfig.
func Resolve(configs ...Config) (GeneralConfig, error) {
	var g GeneralConfig
	for i := range configs {
		if configs[i] == nil {
			continue
		}
		if err := configs[i].Apply(&g); err != nil {
			return g, err
		}
	}

	if g.Logger == nil {
		g.Logger = zap.NewNop()
	}
	return g, nil
}

package pipeline

import "go.uber.org/zap"

// NewLogger builds the *zap.Logger every cmd/* driver starts with:
// human-readable development encoding for "local" or an empty env, JSON production
// encoding otherwise, matching Config.Env.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// NewEngine returns a gin engine with recovery that only honours
// X-Forwarded-For from trustedProxies. With none, ClientIP is the socket
// peer, so the per-client rate limit cannot be sidestepped by a header.
func NewEngine(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	return r, nil
}

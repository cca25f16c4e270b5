package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware provides CORS configuration for the verification widget.
// The collector runs embedded in third-party pages, so origins stay open
// for the public verify surface; credentials are never used there.
func CORSMiddleware() gin.HandlerFunc {
	config := cors.Config{
		AllowAllOrigins: true,
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With", "X-Signature",
		},
		ExposeHeaders: []string{
			"Content-Type", "Retry-After",
		},
	}

	return cors.New(config)
}

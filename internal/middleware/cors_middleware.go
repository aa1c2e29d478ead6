package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET,POST,PATCH,DELETE,OPTIONS"
	corsHeaders = "Authorization,Content-Type"
	corsMaxAge  = 24 * 60 * 60
)

// originPolicy matches request origins against the configured list. An entry
// may be "*", an exact origin, or an origin with ":*" in place of the port,
// such as "http://localhost:*" for dev servers on any port.
type originPolicy struct {
	wildcard bool
	exact    map[string]struct{}
	anyPort  map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	policy := originPolicy{
		exact:   make(map[string]struct{}, len(origins)),
		anyPort: make(map[string]struct{}),
	}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			policy.wildcard = true
		case strings.HasSuffix(origin, ":*"):
			policy.anyPort[strings.TrimSuffix(origin, ":*")] = struct{}{}
		default:
			policy.exact[origin] = struct{}{}
		}
	}
	return policy
}

func (p originPolicy) allows(origin string) bool {
	if p.wildcard {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if len(p.anyPort) == 0 {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Port() == "" {
		return false
	}
	_, ok := p.anyPort[parsed.Scheme+"://"+parsed.Hostname()]
	return ok
}

// CORS answers preflights itself. Origins outside the list get no
// Access-Control-Allow-Origin header, so browsers refuse the response.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newOriginPolicy(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && policy.allows(origin) {
			if policy.wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Methods", corsMethods)
		c.Header("Access-Control-Allow-Headers", corsHeaders)
		c.Header("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
		c.AbortWithStatus(http.StatusNoContent)
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowedOrigins 解析 CORS_ORIGIN（逗号分隔，"*" 表示全部放行）。
type AllowedOrigins struct {
	any  bool
	list map[string]struct{}
}

func ParseOrigins(raw string) AllowedOrigins {
	a := AllowedOrigins{list: map[string]struct{}{}}
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			a.any = true
		default:
			a.list[strings.ToLower(o)] = struct{}{}
		}
	}
	return a
}

func (a AllowedOrigins) Allowed(origin string) bool {
	if a.any || origin == "" {
		return true
	}
	_, ok := a.list[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

// CheckOrigin 给 websocket.Upgrader 使用；没有 Origin 头的非浏览器客户端放行。
func (a AllowedOrigins) CheckOrigin(r *http.Request) bool {
	return a.Allowed(r.Header.Get("Origin"))
}

// Origin 写 CORS 响应头，并直接应答预检请求。
func Origin(a AllowedOrigins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && a.Allowed(origin) {
			if a.any {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

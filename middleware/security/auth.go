package security

import (
	"net/http"
	"strings"

	"ChatRelay/tools/errs"

	"github.com/gin-gonic/gin"
)

// —— context key ——
const (
	CtxUserKey  = "userId"
	CtxTokenKey = "authorization"
)

// Credential 来源，按顺序尝试
const (
	SourceBearer = "bearer"
	SourceHeader = "header"
	SourceQuery  = "query"
	SourceAuth   = "auth"
)

// ExtractToken 依次读取 Authorization: Bearer、原始 authorization 头、?token=、?auth=。
// 没有任何凭证时返回空串。
func ExtractToken(r *http.Request) (token, source string) {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" && !strings.EqualFold(authz, "bearer") {
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			if t := strings.TrimSpace(authz[len("bearer "):]); t != "" {
				return t, SourceBearer
			}
		} else {
			return authz, SourceHeader
		}
	}
	q := r.URL.Query()
	if t := strings.TrimSpace(q.Get("token")); t != "" {
		return t, SourceQuery
	}
	if t := strings.TrimSpace(q.Get("auth")); t != "" {
		return strings.TrimSpace(strings.TrimPrefix(t, "Bearer ")), SourceAuth
	}
	return "", ""
}

// Verifier 校验请求并返回用户 id；错误应为 errs.CodeError。
type Verifier func(r *http.Request) (userID, token string, err error)

// Middleware 给普通 HTTP 路由做鉴权，失败时 401 + {"error": reason}。
func Middleware(verify Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, token, err := verify(c.Request)
		if err != nil {
			reason := errs.ErrInvalidToken.Msg
			if errs.ErrAuthentication.Is(err) {
				ce, _ := errs.AsCode(err)
				reason = ce.Msg
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		c.Set(CtxUserKey, uid)
		c.Set(CtxTokenKey, token)
		c.Next()
	}
}

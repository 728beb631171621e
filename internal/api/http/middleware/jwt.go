package middleware

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

// IdentityKey token 中的操作者字段
const IdentityKey = "admin"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewJWTAuth 创建 /admin 鉴权中间件：POST /admin/login 以用户名密码换取 HS256 token
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration, username, password string) (*jwt.HertzJWTMiddleware, error) {
	if timeout <= 0 {
		timeout = time.Hour
	}
	if maxRefresh <= 0 {
		maxRefresh = timeout
	}
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "rag-indexer-admin",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: IdentityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if name, ok := data.(string); ok {
				return jwt.MapClaims{IdentityKey: name}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			return claims[IdentityKey]
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req loginRequest
			if err := c.BindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			if password == "" ||
				subtle.ConstantTimeCompare([]byte(req.Username), []byte(username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(req.Password), []byte(password)) != 1 {
				return nil, jwt.ErrFailedAuthentication
			}
			return req.Username, nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]string{"error": message})
		},
		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}

package server

import (
	"net/http"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/config"
	"github.com/DLT11-dev/be-chat/internal/metrics"
	"github.com/DLT11-dev/be-chat/internal/mw"
	"github.com/DLT11-dev/be-chat/internal/service"
	"github.com/DLT11-dev/be-chat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 是路由需要的全部服务。
type Deps struct {
	Users    *service.UserService
	Sessions *service.SessionService
	Messages *service.MessageService
	Hub      *ws.Hub
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// 返回的 RL 需要在停服时 Stop，限速关闭时为 nil。
func SetupRouter(cfg config.Config, d Deps) (*gin.Engine, *mw.RL) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.CORSOrigin))
	// 控制单个 IP+路由的速率。
	limit, rl := mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	r.Use(limit)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": d.Hub.Online()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(d.Users, d.Sessions, d.Messages, d.Hub)
	requireAuth := auth.AuthMiddleware(d.Sessions)

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)
	api.POST("/auth/logout", h.Logout)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(requireAuth)
	authed.POST("/auth/logout-all", h.LogoutAll)
	authed.POST("/messages", h.SendMessage)
	authed.GET("/messages/unread", h.Unread)
	authed.PUT("/messages/:id/read", h.MarkRead)
	authed.DELETE("/messages/:id", h.DeleteMessage)
	authed.GET("/conversations", h.Conversations)
	authed.GET("/conversations/:otherUserId/messages", h.ConversationMessages)
	authed.PUT("/conversations/:otherUserId/read", h.MarkConversationRead)

	gk := ws.NewGatekeeper(d.Sessions, d.Users)
	r.GET("/ws", ws.Serve(d.Hub, gk, ws.Options{
		EventsPerSecond: cfg.RateLimitRPS,
		EventBurst:      cfg.RateLimitBurst,
	}))
	return r, rl
}

package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/config"
	"sudooom.im.chatroom/internal/handler"
	"sudooom.im.chatroom/internal/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Friend       *handler.FriendHandler
	Group        *handler.GroupHandler
	Chat         *handler.ChatHandler
	Conversation *handler.ConversationHandler
	Media        *handler.MediaHandler
	Stream       *handler.StreamHandler
}

// SetupRouter 设置路由
// limiter 为 nil 时不限流
func SetupRouter(cfg *config.Config, auth middleware.Authenticator, limiter *middleware.IPRateLimiter, h Handlers) *gin.Engine {
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(slog.Default().With("component", "http")))
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	v1 := r.Group("/api/v1")
	if limiter != nil {
		v1.Use(middleware.RateLimit(limiter))
	}
	{
		// 认证接口（无需登录）
		public := v1.Group("/auth")
		{
			public.POST("/register", h.Auth.Register)
			public.POST("/login", h.Auth.Login)
			public.POST("/refresh", h.Auth.Refresh)
		}

		// 需要认证的接口
		authenticated := v1.Group("")
		authenticated.Use(middleware.TokenAuth(auth, false))
		{
			authenticated.POST("/auth/logout", h.Auth.Logout)
			authenticated.GET("/auth/session", h.Auth.Session)

			// 用户接口
			user := authenticated.Group("/user")
			{
				user.GET("/profile", h.User.GetProfile)
				user.PUT("/profile", h.User.UpdateProfile)
				user.PUT("/background", h.User.UpdateBackground)
				user.GET("/search", h.User.Search)
				user.POST("/profiles", h.User.GetProfiles)
				user.GET("/:id", h.User.GetUserByID)
			}

			// 好友接口
			friends := authenticated.Group("/friends")
			{
				friends.GET("", h.Friend.GetFriendList)
				friends.POST("/request", h.Friend.SendRequest)
				friends.GET("/requests", h.Friend.GetPendingRequests)
				friends.POST("/accept/:id", h.Friend.AcceptRequest)
				friends.POST("/reject/:id", h.Friend.RejectRequest)
				friends.DELETE("/:id", h.Friend.DeleteFriend)
			}

			// 群组接口
			groups := authenticated.Group("/groups")
			{
				groups.POST("", h.Group.CreateGroup)
				groups.GET("", h.Group.ListGroups)
				groups.GET("/:id", h.Group.GetGroup)
				groups.PUT("/:id/photo", h.Group.ChangePhoto)
				groups.POST("/:id/roles", h.Group.CreateRole)
				groups.DELETE("/:id/roles", h.Group.DeleteRole)
				groups.POST("/:id/members", h.Group.AddMember)
				groups.DELETE("/:id/members/:userId", h.Group.RemoveMember)
				groups.PUT("/:id/members/:userId/role", h.Group.AssignRole)
				groups.DELETE("/:id/members/:userId/role", h.Group.UnassignRole)
				groups.GET("/:id/messages", h.Chat.ListGroup)
				groups.POST("/:id/messages", h.Chat.SendGroup)
				groups.DELETE("/:id/messages/:messageId", h.Chat.DeleteGroupMessage)
			}

			// 单聊接口
			chats := authenticated.Group("/chats")
			{
				chats.POST("/messages", h.Chat.SendDirect)
				chats.GET("/:peerId/messages", h.Chat.ListDirect)
				chats.POST("/:peerId/media", h.Chat.SendDirectMedia)
			}

			// 会话列表
			conversations := authenticated.Group("/conversations")
			{
				conversations.GET("", h.Conversation.List)
				conversations.GET("/unread", h.Conversation.Unread)
				conversations.POST("/:peerId/read", h.Conversation.MarkRead)
			}

			authenticated.POST("/media", h.Media.Upload)
		}

		// 实时订阅，浏览器 WebSocket 无法设置 Authorization 头，允许 ?token=
		stream := v1.Group("/stream")
		stream.Use(middleware.TokenAuth(auth, true))
		{
			stream.GET("/profile", h.Stream.Profile)
			stream.GET("/requests", h.Stream.Requests)
			stream.GET("/groups", h.Stream.Groups)
			stream.GET("/groups/:id", h.Stream.Group)
			stream.GET("/groups/:id/messages", h.Stream.GroupMessages)
			stream.GET("/chats/:peerId", h.Stream.Conversation)
			stream.GET("/inbox", h.Stream.Inbox)
			stream.GET("/notifications", h.Stream.Notifications)
		}
	}

	return r
}

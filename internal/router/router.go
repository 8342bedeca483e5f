package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/helpdesk/api/handler"
	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/internal/middleware"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Message *apiHandler.MessageHandler
	Admin   *apiHandler.AdminHandler
	Agent   *apiHandler.AgentHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authenticate middleware.Middleware) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Public routes
	r.POST("/messages", handlers.Message.Route)
	r.GET("/business", handlers.Message.ListBusinesses)
	r.POST("/login", handlers.Auth.Login)

	// Session routes
	r.POST("/logout", authenticate(handlers.Auth.Logout))
	r.POST("/refresh", authenticate(handlers.Auth.Refresh))

	admin := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return middleware.Chain(h, authenticate, middleware.RequireRole(domain.RoleAdmin))
	}
	agent := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return middleware.Chain(h, authenticate, middleware.RequireRole(domain.RoleAgent))
	}

	r.GET("/admin/conversations", admin(handlers.Admin.ListConversations))
	r.GET("/admin/conversations/{id}", admin(handlers.Admin.GetConversation))
	r.PATCH("/admin/conversations/{id}/reassign", admin(handlers.Admin.Reassign))
	r.GET("/admin/agents", admin(handlers.Admin.ListAgents))
	r.GET("/admin/departments", admin(handlers.Admin.ListDepartments))

	r.GET("/agent/chats", agent(handlers.Agent.ListChats))
	r.GET("/agent/chats/{id}", agent(handlers.Agent.GetChat))
	r.POST("/agent/chats/{id}/messages", agent(handlers.Agent.Reply))
	r.PATCH("/agent/chats/{id}/close", agent(handlers.Agent.Close))

	return r
}

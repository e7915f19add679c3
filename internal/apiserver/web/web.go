// Package web 服务端渲染页面
//
// 页面模板通过 embed 打进二进制，启动时全部解析。
// 页面只渲染外壳和初始数据，交互由页面内脚本调用 JSON API 完成。
package web

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"clients-admin/internal/apiserver/auth"
	"clients-admin/internal/shared/storage"
)

//go:embed templates
var templateFiles embed.FS

// pageNames 所有独立页面模板
var pageNames = []string{
	"home", "admin_dashboard", "client_dashboard",
	"client_login", "client_register", "admin_login",
	"forgot_password", "reset_password",
}

// Handler 页面渲染处理器
type Handler struct {
	store     storage.Store
	adminAuth auth.Middleware
	pages     map[string]*template.Template
}

// NewHandler 创建页面处理器，解析全部模板
func NewHandler(store storage.Store, adminAuth auth.Middleware) (*Handler, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFiles,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	h := &Handler{store: store, pages: pages}
	if adminAuth != nil {
		h.adminAuth = adminAuth
	} else {
		h.adminAuth = func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	return h, nil
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHome)
	mux.HandleFunc("GET /admin", h.adminAuth(h.handleAdminDashboard))
	mux.HandleFunc("GET /client/{id}", h.handleClientDashboard)
	mux.HandleFunc("GET /auth/client-login", h.handlePage("client_login", "Client Login"))
	mux.HandleFunc("GET /auth/client-register", h.handlePage("client_register", "Client Registration"))
	mux.HandleFunc("GET /auth/admin-login", h.handlePage("admin_login", "Admin Login"))
	mux.HandleFunc("GET /auth/forgot-password", h.handlePage("forgot_password", "Forgot Password"))
	mux.HandleFunc("GET /auth/reset-password/{token}", h.handleResetPassword)
}

// pageData 模板渲染上下文
type pageData struct {
	Title string
	Data  map[string]interface{}
}

func (h *Handler) render(w http.ResponseWriter, name string, data pageData) {
	tmpl, ok := h.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		log.Printf("[web.render] %s error: %v", name, err)
	}
}

// handlePage 无动态数据的静态页面
func (h *Handler) handlePage(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, name, pageData{Title: title})
	}
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, "home", pageData{Title: "Marketing Automation Portal"})
}

// handleAdminDashboard 后台首页
//
// 数据库不可用时降级渲染空数据占位，页面本身始终可达。
func (h *Handler) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Placeholder": false,
		"Stats":       nil,
		"Clients":     nil,
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		log.Printf("[web.handleAdminDashboard] stats error: %v", err)
		data["Placeholder"] = true
	} else {
		data["Stats"] = stats
	}

	if !data["Placeholder"].(bool) {
		clients, err := h.store.ListClients(r.Context(), "", "")
		if err != nil {
			log.Printf("[web.handleAdminDashboard] list error: %v", err)
			data["Placeholder"] = true
		} else {
			data["Clients"] = clients
		}
	}

	h.render(w, "admin_dashboard", pageData{Title: "Admin Dashboard", Data: data})
}

// handleClientDashboard 客户工作台外壳页
//
// 页面本身不做认证，数据由页面脚本携带令牌调用 API 获取。
func (h *Handler) handleClientDashboard(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	data := map[string]interface{}{
		"ClientID": clientID,
		"Name":     "",
	}
	if c, err := h.store.GetClientByClientID(r.Context(), clientID); err == nil && c != nil {
		data["Name"] = c.Name
	}
	h.render(w, "client_dashboard", pageData{Title: "Client Dashboard", Data: data})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, "reset_password", pageData{
		Title: "Reset Password",
		Data:  map[string]interface{}{"Token": r.PathValue("token")},
	})
}

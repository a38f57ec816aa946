package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/prompts", h.ListPrompts)
		r.Get("/prompts/{name}", h.ExportPrompt)

		r.Post("/workspaces", h.CreateWorkspace)
		r.Route("/workspaces/{ws}", func(r chi.Router) {
			r.Get("/", h.GetWorkspace)
			r.Get("/events", h.Events)
			r.Post("/reset", h.ResetWorkspace)
			r.Put("/settings", h.UpdateSettings)
			r.Put("/category", h.SelectCategory)
			r.Post("/cancel/{op}", h.Cancel)
			r.Get("/context", h.GetContext)

			r.Route("/form", func(r chi.Router) {
				r.Put("/field", h.SetField)
				r.Post("/load", h.LoadForm)
				r.Put("/images", h.SetPackImages)
			})

			r.Route("/clips", func(r chi.Router) {
				r.Post("/", h.AddClip)
				r.Post("/retry", h.RetryClips)
				r.Delete("/{id}", h.RemoveClip)
			})

			r.Route("/suggestions", func(r chi.Router) {
				r.Get("/users", h.FetchUsers)
				r.Get("/discussions", h.SearchDiscussions)
				r.Post("/discussions/{id}/load", h.LoadDiscussion)
			})

			r.Route("/positioning", func(r chi.Router) {
				r.Post("/generate", h.GeneratePositioning)
				r.Put("/", h.SavePositioning)
				r.Post("/enhanced", h.SaveEnhancedPositioning)
			})

			r.Route("/worlds", func(r chi.Router) {
				r.Post("/generate", h.GenerateWorlds)
				r.Post("/recommend", h.RecommendWorlds)
				r.Post("/custom", h.CreateCustomWorld)
				r.Post("/save", h.SaveWorlds)
				r.Put("/selected", h.SelectWorld)
				r.Put("/{id}/rank", h.RankWorld)
				r.Post("/{id}/edit", h.ToggleEditWorld)
				r.Patch("/{id}", h.UpdateWorld)
				r.Post("/{id}/image", h.GenerateWorldImage)
			})

			r.Route("/pillars", func(r chi.Router) {
				r.Post("/generate", h.GeneratePillars)
				r.Post("/recommend", h.RecommendPillars)
				r.Post("/save", h.SavePillars)
				r.Put("/{p}", h.UpdatePillar)
				r.Post("/{p}/edit", h.ToggleEditPillar)
				r.Post("/{p}/select", h.TogglePillarSelected)

				r.Route("/{p}/stories", func(r chi.Router) {
					r.Post("/generate", h.GenerateStories)
					r.Post("/freestyle", h.FreestyleStory)
					r.Post("/{s}/translate", h.TranslateStory)
					r.Post("/{s}/update", h.UpdateStory)
					r.Post("/{s}/save", h.SaveStory)
					r.Post("/{s}/navigate", h.NavigateVersion)
					r.Post("/{s}/view-original", h.ToggleViewOriginal)
					r.Post("/{s}/edit", h.ToggleEditStory)
					r.Post("/{s}/ad-images", h.GenerateAdImages)
				})
			})
		})
	})

	return r
}

// Events upgrades to a websocket that streams the workspace's events.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.studio(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		writeMessage(w, http.StatusServiceUnavailable, "event hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		Workspace: s.ID(),
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		Hub:       h.hub,
	}

	welcome, _ := json.Marshal(models.Event{
		Type:      models.EventNotice,
		Workspace: s.ID(),
		Topic:     "connected",
		Time:      time.Now(),
	})
	client.Send <- welcome

	h.hub.register <- client
	go client.readPump()
}

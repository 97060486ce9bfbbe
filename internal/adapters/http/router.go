package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/o2o/internal/adapters/signal"
	"github.com/dkeye/o2o/internal/app/rendezvous"
	"github.com/dkeye/o2o/internal/config"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
)

const tokenKey = "ct"

// ClientTokenMiddleware keeps a stable client id in the signed session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(tokenKey).(string)
		if token == "" {
			token = string(domain.NewClientID())
			s.Set(tokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type leaveBeacon struct {
	Room string `json:"room"`
	Type string `json:"type"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *rendezvous.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("o2o", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(
		hub,
		signal.NewRoomRateLimiter(cfg.JoinLimit, cfg.JoinInterval),
		signal.Options{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			PongWait:   cfg.PongWait,
			WriteWait:  cfg.WriteWait,
			SendBuffer: cfg.SendBuffer,
		},
	)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	// Browsers send the beacon while the page unloads, usually as text/plain.
	r.POST("/leave", func(c *gin.Context) {
		data, err := c.GetRawData()
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		var p leaveBeacon
		if err := binding.JSON.BindBody(data, &p); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		id, err := domain.ParseRoomID(p.Room)
		if err != nil || p.Type != "creator" {
			c.Status(http.StatusBadRequest)
			return
		}
		hub.DestroyByCreator(id)
		c.Status(http.StatusNoContent)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": hub.RoomCount(), "time": time.Now().Unix()})
	})

	api := r.Group("/api")
	api.GET("/rooms/:room", func(c *gin.Context) {
		id, err := domain.ParseRoomID(c.Param("room"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, hub.Info(id))
	})

	r.NoRoute(spa(cfg.StaticPath))
	return r
}

// spa serves files from root and falls back to index.html, so /<room> links open the app.
func spa(root string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		name := filepath.Join(root, filepath.Clean("/"+c.Request.URL.Path))
		if !strings.HasSuffix(c.Request.URL.Path, "/") {
			if st, err := os.Stat(name); err == nil && !st.IsDir() {
				c.File(name)
				return
			}
		}
		c.File(filepath.Join(root, "index.html"))
	}
}

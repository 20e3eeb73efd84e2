package websocket

import (
	"context"
	"net/http"
	"slices"
	"time"

	"duel/internal/handle/game"
	"duel/internal/types"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Leaderboard serves the ranking shown on /stats.
type Leaderboard interface {
	Top(ctx context.Context, kind string, n int) ([]types.LeaderboardEntry, error)
}

// originAllowed accepts everything when no origins are configured, and
// requests without an Origin header (non-browser clients).
func originAllowed(allowed []string, origin string) bool {
	return len(allowed) == 0 || origin == "" || slices.Contains(allowed, origin)
}

func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.Use(func(ctx *gin.Context) {
		if originAllowed(s.opts.AllowedOrigins, ctx.Request.Header.Get("Origin")) {
			ctx.Next()
			return
		}
		ctx.JSON(http.StatusForbidden, gin.H{"error": "forbidden origin"})
		ctx.Abort()
	})

	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.AllowedOrigins,
			AllowCredentials: true,
			AllowHeaders:     []string{"Content-Type", "Origin"},
		}))
	}

	r.GET("/ws", s.ServeWS)
	r.GET("/stats", s.serveStats)
	return r
}

func (s *Server) serveStats(ctx *gin.Context) {
	stats := s.engine.Stats()
	body := gin.H{
		"queued":      stats.Queued,
		"sessions":    stats.Sessions,
		"connections": s.registry.ClientCount(),
	}

	if s.opts.Leaderboard != nil {
		kind := ctx.DefaultQuery("kind", game.KindFishing)
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()

		top, err := s.opts.Leaderboard.Top(reqCtx, kind, 10)
		if err != nil {
			log.Errorf("Leaderboard lookup for %s failed: %v", kind, err)
		} else {
			body["leaderboard"] = top
		}
	}
	ctx.JSON(http.StatusOK, body)
}

package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jute-fleet-backend/internal/fleet"
	"jute-fleet-backend/internal/model"
	"jute-fleet-backend/internal/mw"
)

const userKey = "user"

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *fleet.Engine
	users   *fleet.Directory
	db      *gorm.DB
	webpush *webpush.Options
}

// NewHandler creates a new API handler. db may be nil when push
// subscriptions are not stored.
func NewHandler(engine *fleet.Engine, users *fleet.Directory, db *gorm.DB, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		engine:  engine,
		users:   users,
		db:      db,
		webpush: webpushOptions,
	}
}

// identify resolves the acting user from the identity header or the viewer
// query parameter. Unknown identities leave the request anonymous.
func (h *Handler) identify(c *gin.Context) {
	identity := c.GetHeader(mw.IdentityHeader)
	if identity == "" {
		identity = c.Query("viewer")
	}
	if u, ok := h.users.Resolve(identity); ok {
		c.Set(userKey, u)
	}
	c.Next()
}

// requireUser rejects anonymous requests.
func requireUser(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) (model.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return model.User{}, false
	}
	u, ok := v.(model.User)
	return u, ok
}

// viewer returns the acting user's view context; anonymous callers see nothing.
func viewer(c *gin.Context) fleet.Viewer {
	u, ok := currentUser(c)
	if !ok {
		return fleet.Viewer{}
	}
	return fleet.ViewerFor(u)
}

// writeError maps engine errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, fleet.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

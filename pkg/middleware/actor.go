package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pharmatrace/traceability-service/pkg/errors"
)

// Actor headers attached by the upstream authentication layer. The gateway
// has already validated the API key before a request reaches this service;
// these headers carry the verified caller identity.
const (
	HeaderActorID     = "X-Actor-ID"
	HeaderActorRole   = "X-Actor-Role"
	HeaderFacilityGLN = "X-Facility-GLN"
)

// Context keys for actor identity
const (
	ContextKeyActorID     = "actorId"
	ContextKeyActorRole   = "actorRole"
	ContextKeyFacilityGLN = "facilityGln"
)

// Actor is the verified identity of the caller
type Actor struct {
	ID          string
	Role        string
	FacilityGLN string
}

// RequireActor rejects requests that arrive without a verified actor
// identity. Mutating traceability operations must always be attributable.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader(HeaderActorID)
		if actorID == "" {
			AbortWithAppError(c, errors.ErrUnauthorized("missing actor identity"))
			return
		}

		c.Set(ContextKeyActorID, actorID)
		c.Set(ContextKeyActorRole, c.GetHeader(HeaderActorRole))
		c.Set(ContextKeyFacilityGLN, c.GetHeader(HeaderFacilityGLN))

		c.Next()
	}
}

// GetActor extracts the actor identity from the Gin context
func GetActor(c *gin.Context) Actor {
	actor := Actor{}
	if v, ok := c.Get(ContextKeyActorID); ok {
		actor.ID, _ = v.(string)
	}
	if v, ok := c.Get(ContextKeyActorRole); ok {
		actor.Role, _ = v.(string)
	}
	if v, ok := c.Get(ContextKeyFacilityGLN); ok {
		actor.FacilityGLN, _ = v.(string)
	}
	return actor
}

package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

// principalKey is the echo context key holding the resolved principal.
const principalKey = "auth.principal"

// Middleware authenticates every request through the resolver and
// stores the principal on the request context. Authentication failures
// propagate as errors for the central error handler to map.
func Middleware(r *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := r.Resolve(c.Request())
			if err != nil {
				return err
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// PrincipalFrom returns the authenticated principal stored by
// Middleware.
func PrincipalFrom(c echo.Context) (*Principal, error) {
	p, ok := c.Get(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, apperr.Authentication("no authenticated principal")
	}
	return p, nil
}

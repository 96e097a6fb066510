package http

import (
	"github.com/blox-verify/internal/application/credit"
	"github.com/blox-verify/internal/application/moderation"
	"github.com/blox-verify/internal/application/verification"
	jwtinfra "github.com/blox-verify/internal/infrastructure/jwt"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds the services the router exposes. A nil JWTProvider disables the admin API;
// a nil Gatherer disables /metrics.
type Deps struct {
	Verification verification.Service
	Credits      credit.Service
	Moderation   moderation.Service
	JWTProvider  *jwtinfra.Provider
	Gatherer     prometheus.Gatherer
}

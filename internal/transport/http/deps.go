package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-notify-nosql/internal/application/device"
	"github.com/go-notify-nosql/internal/application/notification"
	jwtinfra "github.com/go-notify-nosql/internal/infrastructure/jwt"
	"github.com/go-notify-nosql/internal/transport/http/handler"
)

// Deps holds the services and infrastructure the router mounts.
type Deps struct {
	Notifications notification.Service
	// Devices is nil when the store has no device table; its routes are then not mounted.
	Devices     device.Service
	JWTProvider *jwtinfra.Provider
	Gatherer    prometheus.Gatherer
	// HealthChecks run on GET /v1/health-check/ready.
	HealthChecks map[string]handler.Check
}

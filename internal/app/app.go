package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/logger"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/observability"
	"github.com/Additional-Code/procura/internal/realtime"
	repositorypurchase "github.com/Additional-Code/procura/internal/repository/purchase"
	grpcserver "github.com/Additional-Code/procura/internal/server/grpc"
	httpserver "github.com/Additional-Code/procura/internal/server/http"
	servicepurchase "github.com/Additional-Code/procura/internal/service/purchase"
	transporthttp "github.com/Additional-Code/procura/internal/transport/http"
	"github.com/Additional-Code/procura/internal/worker"
	workerpurchase "github.com/Additional-Code/procura/internal/worker/purchase"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositorypurchase.Module,
	servicepurchase.Module,
)

// HTTP wires the HTTP transport, live feed and gRPC health server on top of
// the core modules.
var HTTP = fx.Options(
	Core,
	auth.Module,
	realtime.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerpurchase.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP

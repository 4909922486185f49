package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/logger"
	"github.com/Additional-Code/comanda/internal/messaging"
	"github.com/Additional-Code/comanda/internal/observability"
	"github.com/Additional-Code/comanda/internal/repository/catalog"
	"github.com/Additional-Code/comanda/internal/repository/customer"
	"github.com/Additional-Code/comanda/internal/repository/history"
	repositoryorder "github.com/Additional-Code/comanda/internal/repository/order"
	repositorypayment "github.com/Additional-Code/comanda/internal/repository/payment"
	"github.com/Additional-Code/comanda/internal/repository/tenant"
	"github.com/Additional-Code/comanda/internal/repository/venue"
	"github.com/Additional-Code/comanda/internal/sequence"
	grpcserver "github.com/Additional-Code/comanda/internal/server/grpc"
	httpserver "github.com/Additional-Code/comanda/internal/server/http"
	serviceorder "github.com/Additional-Code/comanda/internal/service/order"
	servicepayment "github.com/Additional-Code/comanda/internal/service/payment"
	transporthttp "github.com/Additional-Code/comanda/internal/transport/http"
	"github.com/Additional-Code/comanda/internal/worker"
	workerorder "github.com/Additional-Code/comanda/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	event.Module,
	sequence.Module,
	repositoryorder.Module,
	repositorypayment.Module,
	venue.Module,
	customer.Module,
	catalog.Module,
	tenant.Module,
	history.Module,
	serviceorder.Module,
	servicepayment.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// API serves both HTTP and gRPC.
var API = fx.Options(
	HTTP,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring.
var Module = API

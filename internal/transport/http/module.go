package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/comanda/internal/transport/http/order"
	paymenttransport "github.com/Additional-Code/comanda/internal/transport/http/payment"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	paymenttransport.Module,
)

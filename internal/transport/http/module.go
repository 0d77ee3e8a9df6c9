package http

import (
	"go.uber.org/fx"

	purchasetransport "github.com/Additional-Code/procura/internal/transport/http/purchase"
	sessiontransport "github.com/Additional-Code/procura/internal/transport/http/session"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	purchasetransport.Module,
	sessiontransport.Module,
)

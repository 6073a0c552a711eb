package mcptrace

import "fmt"

// Instrument constructs a tracing middleware and attaches it to a host server
// instance. MCP server implementations vary in how middleware is registered,
// so two common hook shapes are tried in order:
//
//   - AddMiddleware(ToolMiddleware)
//   - Use(ToolMiddleware)
//
// When the instance exposes neither, a configuration error is returned; this
// never silently no-ops. Hosts with a different registration mechanism should
// use InstrumentWith.
func Instrument(app any, opts ...Option) (*Middleware, error) {
	mw := New(opts...)
	switch host := app.(type) {
	case interface{ AddMiddleware(ToolMiddleware) }:
		host.AddMiddleware(mw)
	case interface{ Use(ToolMiddleware) }:
		host.Use(mw)
	default:
		return nil, fmt.Errorf("mcptrace: %T exposes no middleware registration hook (want AddMiddleware(ToolMiddleware) or Use(ToolMiddleware)); use InstrumentWith with a register callback", app)
	}
	return mw, nil
}

// InstrumentWith constructs a tracing middleware and hands it to a custom
// registration callback.
func InstrumentWith(register func(ToolMiddleware), opts ...Option) *Middleware {
	mw := New(opts...)
	register(mw)
	return mw
}

// Package server implements the streams service: a SockJS endpoint that
// echoes every message back to its sender and a timer that pushes the
// current Unix time in milliseconds to every registered connection once per
// interval.
//
// A connection joins the broadcast when it sends its first message (or on
// connect when Config.RegisterOnConnect is set) and leaves it when its
// session ends. The implementation is split into files for configuration,
// the hub, connections, routing, and HTTP handlers.
package server

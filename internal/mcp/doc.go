// Package mcp implements MCP (Model Context Protocol) client support:
// connecting to external tool servers, discovering their tools and
// resources, and invoking tools on behalf of callers.
//
// MCP uses JSON-RPC 2.0 over two transports: stdio (subprocess) and
// HTTP. A Client walks a fixed lifecycle: initialize, the initialized
// notification, then tools/list and resources/list discovery. Servers
// whose handshake or discovery fails stay usable through a static
// fallback catalog so a single bad server never empties the aggregate
// tool list.
//
// This implementation covers the client/host side only. toolmux does
// not act as an MCP server.
package mcp

package mcp

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportSSE communicates via the MCP HTTP+SSE protocol. This is the
	// default and matches a tool host serving at e.g. http://localhost:8000/sse.
	TransportSSE Transport = "sse"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"

	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportSSE, TransportStreamableHTTP, TransportStdio:
		return true
	}
	return false
}

// OrDefault returns t, or [TransportSSE] when t is empty.
func (t Transport) OrDefault() Transport {
	if t == "" {
		return TransportSSE
	}
	return t
}

// Package mcpcap sources capabilities from an MCP server instead of a
// static API description. Tools discovered over the MCP protocol become
// capability descriptors with their input schema taken verbatim, and
// invocations are routed back through the same session as tool calls.
package mcpcap

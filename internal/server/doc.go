// Package server implements the MCP (Model Context Protocol) server for bounded-memory
// image decoding.
//
// The server exposes the decode pipeline and the decoded image cache as MCP tools,
// so a client can ask for an image scaled to a display size without the process
// ever holding more than one full-size decode in memory.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Image Information:
//   - image_probe: Natural size and container format, read from the header only
//
// Decoding:
//   - image_decode: Decode to fit max_width x max_height under a fit policy
//   - image_decode_batch: Decode several images; decodes still run one at a time
//
// Cache:
//   - cache_stats: Entries, bytes used, hit and miss counters
//   - cache_clear: Drop all cached buffers
//
// # Image Sources
//
// Every tool that takes an image accepts either a "path" to a local file or
// "data_base64" with the compressed bytes inline. Inline data is cached under
// "id" if given, otherwise under a digest of the bytes.
//
// # Error Handling
//
// Decode failures return a JSON-RPC error with code -32000. The error data
// carries the failure kind: SOURCE_NOT_FOUND, MALFORMED_DATA,
// DECODE_OUT_OF_MEMORY or UNSUPPORTED_FORMAT. In a batch, each item reports
// its own error and kind instead.
//
// # Logging
//
// Stdout is reserved for the protocol. All logging goes through the zap
// logger passed to New, which writes to stderr and optionally a file.
package server

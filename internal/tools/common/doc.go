// Package common provides shared helpers for the MCP tool packages: the
// instrumented handler wrapper every tool is registered through, argument
// accessors and JSON result rendering.
package common

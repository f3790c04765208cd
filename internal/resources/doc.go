// Package resources provides read-only MCP resources for task clients.
//
//   - tasksync://help: usage of the task tools as markdown
//   - tasksync://session: the caller's reference scope state as JSON
package resources

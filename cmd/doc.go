// Package cmd implements the command-line interface for tasksync.
//
// This package provides the following commands:
//   - serve: Start the MCP server with the task_add, task_list and task_complete tools
//   - check: Connect to the CalDAV server and report the calendar in use
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd

// Package task_tools provides the MCP tools for adding, listing and
// completing today's tasks.
//
// # Available Tools
//
//   - task_add: Create a task due today at 23:59
//   - task_list: List today's open tasks with their numbers
//   - task_complete: Mark a task done by the number from the last listing
//
// # Scopes
//
// Task numbers belong to the scope that listed them. The scope is the MCP
// client session, optionally narrowed by the 'scope' argument so a chat
// bridge can keep separate numbering per channel over one session.
//
// # Errors
//
// Failures come back as tool error results with a short message chosen by
// error kind. Server addresses, credentials and raw records are logged but
// never shown to the user.
package task_tools

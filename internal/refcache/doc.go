// Package refcache remembers which task each displayed number refers to.
//
// Every successful listing for a scope (a chat channel, an MCP session)
// replaces that scope's ordinal-to-UID mapping wholesale and bumps its
// generation. Mappings expire after a fixed TTL; a background sweeper
// started with Start removes expired scopes. Nothing is ever persisted.
package refcache

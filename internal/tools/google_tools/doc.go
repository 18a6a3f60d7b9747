// Package google_tools provides MCP tools for Google OAuth authentication.
//
// The OAuth flow:
//  1. Call google_get_auth_url to get the authorization URL
//  2. The user visits the URL and authorizes access
//  3. The user provides the authorization code
//  4. Call google_save_auth_code with the code to save the token
//
// Saving a code drops any mailbox service cached for the account, so the
// next Gmail tool call picks up the new credential and its scopes.
package google_tools

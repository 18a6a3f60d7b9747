package common

import (
	"github.com/teemow/inboxprune/internal/server"
)

// GetAccountFromArgs returns the "account" argument, or the default account
// when it is missing, empty or not a string.
func GetAccountFromArgs(args map[string]interface{}) string {
	if accountVal, ok := args["account"].(string); ok && accountVal != "" {
		return accountVal
	}
	return server.DefaultAccount
}

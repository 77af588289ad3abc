package event

import (
	"fmt"
	"strings"
)

// ChainID names an independent execution chain.
type ChainID string

// Owner is an account owner identity: a user or an application.
type Owner string

// ApplicationID names a deployed application (the market app or a token app).
type ApplicationID string

const applicationOwnerPrefix = "app:"

// Owner returns the custody identity of the application itself. Tokens held by
// an application live under this owner on each chain.
func (a ApplicationID) Owner() Owner {
	return Owner(applicationOwnerPrefix + string(a))
}

// IsApplication reports whether o is an application custody identity.
func (o Owner) IsApplication() bool {
	return strings.HasPrefix(string(o), applicationOwnerPrefix)
}

// Account is an owner on a specific chain.
type Account struct {
	Chain ChainID `json:"chain_id"`
	Owner Owner   `json:"owner"`
}

func (a Account) String() string {
	return fmt.Sprintf("%s@%s", a.Owner, a.Chain)
}

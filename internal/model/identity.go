package model

import "time"

// Identity links a user to a wallet and holds the credentials issued to them.
// Identities and wallets live in separate maps joined by WalletAddress; the
// identity never aliases the wallet object itself.
type Identity struct {
	UserID        string
	WalletAddress string
	Credentials   map[string]Credential
	CreatedAt     time.Time
}

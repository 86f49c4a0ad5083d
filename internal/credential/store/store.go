package store

import "rxvc/internal/credential/ports"

var (
	_ ports.CredentialStore = (*InMemoryStore)(nil)
	_ ports.CredentialStore = (*PostgresStore)(nil)
)

// File: internal/credentials/credentials.go
// Brief: Random service credentials generated once per install.

// Package credentials generates the secrets of one install and derives the
// basic-auth line that protects the log store.
package credentials

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sort"
)

// SecretLength is the length of every generated secret and token.
const SecretLength = 30

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Slot names one credential of the stack.
type Slot string

const (
	Database         Slot = "database"
	LogStore         Slot = "log-store"
	MetricsStore     Slot = "metrics-store"
	ApplicationAdmin Slot = "application-admin"
)

// Fixed service account names; only the application admin is user-chosen.
const (
	DatabaseUser     = "cosy"
	LogStoreUser     = "loki"
	MetricsStoreUser = "admin"
)

// Credential is one username/secret pair. Token is set for the metrics
// store admin token; DerivedHash holds the basic-auth line for the log store.
type Credential struct {
	Username    string
	Secret      string
	Token       string
	DerivedHash string
}

// Set maps slots to credentials for a single install.
type Set map[Slot]Credential

// Get returns the credential for slot or the zero value.
func (s Set) Get(slot Slot) Credential {
	return s[slot]
}

// Slots returns the populated slots in stable order.
func (s Set) Slots() []Slot {
	out := make([]Slot, 0, len(s))
	for slot := range s {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Redacted renders usernames only, for logs.
func (s Set) Redacted() map[string]string {
	out := make(map[string]string, len(s))
	for slot, c := range s {
		out[string(slot)] = c.Username + ":***"
	}
	return out
}

// GenerateSecret returns a uniformly distributed alphanumeric string.
func GenerateSecret(length int) (string, error) {
	return generateFrom(rand.Reader, length)
}

func generateFrom(r io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}
	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Generator produces CredentialSets.
type Generator struct {
	Hashers []Hasher
	Length  int
	Random  io.Reader
}

// Generate creates every slot and derives the log-store basic-auth line.
// A missing hashing tool fails here, before any resource exists.
func (g *Generator) Generate(ctx context.Context, adminUsername string) (Set, error) {
	length := g.Length
	if length == 0 {
		length = SecretLength
	}
	random := g.Random
	if random == nil {
		random = rand.Reader
	}
	next := func() (string, error) { return generateFrom(random, length) }

	set := Set{}
	for _, spec := range []struct {
		slot Slot
		user string
	}{
		{Database, DatabaseUser},
		{LogStore, LogStoreUser},
		{MetricsStore, MetricsStoreUser},
		{ApplicationAdmin, adminUsername},
	} {
		secret, err := next()
		if err != nil {
			return nil, err
		}
		set[spec.slot] = Credential{Username: spec.user, Secret: secret}
	}

	metrics := set[MetricsStore]
	token, err := next()
	if err != nil {
		return nil, err
	}
	metrics.Token = token
	set[MetricsStore] = metrics

	logs := set[LogStore]
	line, err := DeriveBasicAuth(ctx, g.Hashers, logs.Username, logs.Secret)
	if err != nil {
		return nil, err
	}
	logs.DerivedHash = line
	set[LogStore] = logs
	return set, nil
}

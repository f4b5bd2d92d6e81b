package provider

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/esprit-sec/esprit/internal/config"
)

// Store holds one credential per provider in credentials.json. Providers
// with MultiAccount use the account pool instead; this store is the
// single-credential path.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the default credentials file.
func NewStore() *Store {
	return &Store{path: config.CredentialsFile()}
}

// NewStoreAt returns a store backed by an explicit path, for tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (map[string]*Credentials, error) {
	data, err := config.ReadFileIfExists(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	if data == nil {
		return map[string]*Credentials{}, nil
	}
	var creds map[string]*Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if creds == nil {
		creds = map[string]*Credentials{}
	}
	return creds, nil
}

func (s *Store) save(creds map[string]*Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	return config.WriteFileAtomic(s.path, data)
}

// Get returns the stored credential for a provider, or nil.
func (s *Store) Get(providerID string) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, err := s.load()
	if err != nil {
		return nil, err
	}
	return creds[providerID], nil
}

// Set stores or replaces the credential for a provider.
func (s *Store) Set(providerID string, c *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, err := s.load()
	if err != nil {
		return err
	}
	creds[providerID] = c
	return s.save(creds)
}

// Delete removes the credential for a provider. Deleting a provider that
// has no credential is not an error.
func (s *Store) Delete(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := creds[providerID]; !ok {
		return nil
	}
	delete(creds, providerID)
	return s.save(creds)
}

// Has reports whether a provider has a stored credential.
func (s *Store) Has(providerID string) bool {
	c, err := s.Get(providerID)
	return err == nil && c != nil
}

package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// User is the client-side view of the account, as served by the portal API.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	HasCharacter bool   `json:"hasCharacter"`
	Character    string `json:"character,omitempty"`
}

// State is the persisted session view consumed by the rendering layer
// between reloads. IsAuthenticated holds exactly when a non-empty token is
// present.
type State struct {
	User            *User  `json:"user,omitempty"`
	Token           string `json:"token"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	HasCharacter    bool   `json:"hasCharacter"`
}

// Cache is the browser-storage analog: a JSON file holding the last known
// session state. It is reconcilable against the server at any time through
// the Refresher.
type Cache struct {
	path  string
	mu    sync.Mutex
	state State
}

func NewCache(path string) (*Cache, error) {
	c := &Cache{path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.state); err != nil {
		// A corrupt cache behaves like an empty one.
		c.state = State{}
	}
	return c, nil
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cache) SetSession(user *User, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = State{
		User:            user,
		Token:           token,
		IsAuthenticated: token != "",
	}
	if user != nil {
		c.state.HasCharacter = user.HasCharacter
	}
	return c.persist()
}

func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
	return c.persist()
}

func (c *Cache) persist() error {
	raw, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, raw, 0o600)
}

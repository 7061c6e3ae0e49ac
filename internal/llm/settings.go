package llm

import (
	"net/http"
	"sync"
)

// Settings is the immutable tuple of provider connection parameters. A
// snapshot is always read and replaced as a whole so concurrent turns never
// observe a half-applied update.
type Settings struct {
	Provider  string
	BaseURL   string
	APIKey    string
	ModelName string
}

// SettingsHolder guards the current runtime settings snapshot.
type SettingsHolder struct {
	mu      sync.RWMutex
	current Settings
}

// NewSettingsHolder seeds the holder with boot-time defaults.
func NewSettingsHolder(defaults Settings) *SettingsHolder {
	return &SettingsHolder{current: defaults}
}

// Snapshot returns the complete current settings tuple.
func (h *SettingsHolder) Snapshot() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Update swaps the whole snapshot atomically.
func (h *SettingsHolder) Update(s Settings) {
	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
}

// ProviderFactory builds a provider from a fresh settings snapshot so each
// turn picks up administrator updates immediately.
type ProviderFactory struct {
	holder *SettingsHolder
	client *http.Client
}

// NewProviderFactory constructs a factory sharing one HTTP client.
func NewProviderFactory(holder *SettingsHolder, client *http.Client) *ProviderFactory {
	return &ProviderFactory{holder: holder, client: client}
}

// Provider returns a provider bound to the current snapshot.
func (f *ProviderFactory) Provider() Provider {
	return NewOpenAIProvider(f.holder.Snapshot(), f.client)
}

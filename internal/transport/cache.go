package transport

import (
	"encoding/json"

	"github.com/coredesk/llmcore/internal/cache"
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/pkg/models"
)

// cacheKey builds the deterministic ["messageRequest", provider, md5(...)]
// key for req (spec §4.3 "Cache lookup"). Two calls with requests that
// marshal to identical JSON always produce the same key.
func cacheKey(provider string, req providers.MessageRequest) (string, error) {
	canon, err := cache.CanonicalJSON(req)
	if err != nil {
		return "", err
	}
	return cache.MessageRequestKey(provider, canon), nil
}

// cacheLookup returns the cached response for (provider, req), if present.
// The returned response always has FromCache set to true.
func cacheLookup(store *cache.Store, provider string, req providers.MessageRequest) (*models.ProviderResponse, bool) {
	if store == nil {
		return nil, false
	}
	key, err := cacheKey(provider, req)
	if err != nil {
		return nil, false
	}
	raw, ok := store.Get(key)
	if !ok {
		return nil, false
	}
	var resp models.ProviderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	resp.FromCache = true
	return &resp, true
}

// cacheStore persists resp under (provider, req). resp.FromCache is not
// part of the stored envelope; it is a read-time annotation only.
func cacheStore(store *cache.Store, provider string, req providers.MessageRequest, resp *models.ProviderResponse) {
	if store == nil {
		return
	}
	key, err := cacheKey(provider, req)
	if err != nil {
		return
	}
	stored := *resp
	stored.FromCache = false
	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}
	store.Set(key, raw)
}

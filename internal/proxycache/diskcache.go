package proxycache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/colabcli/colab/internal/colabapi"
)

// DiskCache persists the last-known ProxyInfo per endpoint across process
// restarts (component 4.P, supplemental). The blob is encrypted at rest
// with a per-install key: a random 32-byte seed is generated once and
// stored alongside the cache file, then stretched through HKDF into an
// AES-256-GCM key. This never substitutes for the TTL/safety-margin
// validity check in colabapi.ProxyInfo.Valid — it only avoids one needless
// network refresh within a token's remaining life.
type DiskCache struct {
	path    string
	seedPath string
	mu      sync.Mutex
}

type diskEntry struct {
	URL        string    `json:"url"`
	Token      string    `json:"token"`
	IssuedAt   time.Time `json:"issued_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// NewDiskCache builds a DiskCache rooted at authDir.
func NewDiskCache(authDir string) *DiskCache {
	return &DiskCache{
		path:     filepath.Join(authDir, "proxy-cache.json"),
		seedPath: filepath.Join(authDir, "proxy-cache.seed"),
	}
}

func (d *DiskCache) key() ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(d.seedPath), 0o700); err != nil {
		return nil, fmt.Errorf("proxycache: failed to create auth dir: %w", err)
	}
	seed, err := os.ReadFile(d.seedPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("proxycache: failed to read key seed: %w", err)
		}
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("proxycache: failed to generate key seed: %w", err)
		}
		if err := os.WriteFile(d.seedPath, seed, 0o600); err != nil {
			return nil, fmt.Errorf("proxycache: failed to persist key seed: %w", err)
		}
	}

	hk := hkdf.New(sha256.New, seed, nil, []byte("colab-proxy-cache-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, fmt.Errorf("proxycache: failed to derive key: %w", err)
	}
	return key, nil
}

func (d *DiskCache) gcm() (cipher.AEAD, error) {
	key, err := d.key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("proxycache: failed to build cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Load reads and decrypts the cached entry for endpoint. ok is false if the
// file is missing, unreadable, corrupted, or has no entry for endpoint —
// callers always fall through to a live refresh in that case.
func (d *DiskCache) Load(endpoint string) (colabapi.ProxyInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := os.ReadFile(d.path)
	if err != nil {
		return colabapi.ProxyInfo{}, false
	}
	if len(raw) < 12 {
		return colabapi.ProxyInfo{}, false
	}

	gcm, err := d.gcm()
	if err != nil {
		return colabapi.ProxyInfo{}, false
	}
	nonce, ciphertext := raw[:12], raw[12:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return colabapi.ProxyInfo{}, false
	}

	var all map[string]diskEntry
	if err := json.Unmarshal(plaintext, &all); err != nil {
		return colabapi.ProxyInfo{}, false
	}
	e, ok := all[endpoint]
	if !ok {
		return colabapi.ProxyInfo{}, false
	}
	return colabapi.ProxyInfo{URL: e.URL, Token: e.Token, IssuedAt: e.IssuedAt, TTLSeconds: e.TTLSeconds}, true
}

// Store encrypts and persists info for endpoint, merging with any existing
// entries already on disk.
func (d *DiskCache) Store(endpoint string, info colabapi.ProxyInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	all := map[string]diskEntry{}
	if raw, err := os.ReadFile(d.path); err == nil && len(raw) > 12 {
		if gcm, gerr := d.gcm(); gerr == nil {
			if plaintext, derr := gcm.Open(nil, raw[:12], raw[12:], nil); derr == nil {
				_ = json.Unmarshal(plaintext, &all)
			}
		}
	}
	all[endpoint] = diskEntry{URL: info.URL, Token: info.Token, IssuedAt: info.IssuedAt, TTLSeconds: info.TTLSeconds}

	plaintext, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("proxycache: failed to marshal cache: %w", err)
	}
	gcm, err := d.gcm()
	if err != nil {
		return err
	}
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("proxycache: failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(d.path), 0o700); err != nil {
		return fmt.Errorf("proxycache: failed to create cache directory: %w", err)
	}
	return os.WriteFile(d.path, ciphertext, 0o600)
}

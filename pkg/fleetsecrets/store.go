// Package fleetsecrets implements the secure credential store spec §6
// ("Persisted state layout") describes: a per-user directory holding
// Fleet API credentials (cookie/bearer/OAuth/API-key material) encrypted
// at rest, with directory/file permissions 0700/0600 and a bounded backup
// rotation.
//
// Grounded on intelligencedev-manifold/internal/projects/keyprovider.go's
// FileKeyProvider (master-key-derived AEAD over a local file) and
// vellankikoti-kubilitics-os-emergent's mfa/encryption.go (PBKDF2 key
// derivation feeding AES-GCM), combined per spec §6's explicit
// "PBKDF2-HMAC-SHA256 ... or the platform's OS-level secret API" line: the
// file-based AEAD path is the one implemented here, the OS-keychain path
// is left as the Open Question spec §9 resolves toward "out of scope for
// this core" (see DESIGN.md).
package fleetsecrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	keyLength        = 32
	maxBackups       = 10
	dirPerm          = 0o700
	filePerm         = 0o600
)

// fixedSalt is deliberately constant, per spec §6 ("fixed salt, key from
// app identity") rather than a per-secret random salt: the store has one
// credential file per user directory, keyed by appIdentity, not a
// multi-tenant key space that would need per-record salting.
var fixedSalt = []byte("fleetpilot-corepipe-credential-store-v1")

// Store is a single user's encrypted credential file plus its backup
// rotation, rooted at dir.
type Store struct {
	dir         string
	appIdentity string
	key         []byte
	credPath    string
}

// Credentials holds the Fleet API auth material spec §6 names: cookie,
// bearer token, OAuth token, or API key (callers set only the fields
// relevant to their configured auth mode).
type Credentials struct {
	AuthMode string `json:"auth_mode"`
	Cookie   string `json:"cookie,omitempty"`
	Bearer   string `json:"bearer,omitempty"`
	OAuth    string `json:"oauth,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// Open derives the store's AEAD key from appIdentity and ensures dir
// exists with 0700 permissions. appIdentity is typically the binary name
// plus a stable per-install identifier.
func Open(dir, appIdentity string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("fleetsecrets: create store dir: %w", err)
	}
	if err := os.Chmod(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("fleetsecrets: set store dir permissions: %w", err)
	}
	key := pbkdf2.Key([]byte(appIdentity), fixedSalt, pbkdf2Iterations, keyLength, sha256.New)
	return &Store{
		dir:         dir,
		appIdentity: appIdentity,
		key:         key,
		credPath:    filepath.Join(dir, "credentials.enc"),
	}, nil
}

// Save encrypts creds and writes them to the store's credential file,
// first rotating the existing file into the backup set.
func (s *Store) Save(creds Credentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("fleetsecrets: marshal credentials: %w", err)
	}
	ciphertext, err := s.seal(plaintext)
	if err != nil {
		return err
	}

	if _, err := os.Stat(s.credPath); err == nil {
		if err := s.rotateBackup(); err != nil {
			return err
		}
	}

	if err := os.WriteFile(s.credPath, ciphertext, filePerm); err != nil {
		return fmt.Errorf("fleetsecrets: write credentials: %w", err)
	}
	return nil
}

// Load decrypts and returns the stored credentials. It returns an error
// wrapping os.ErrNotExist if no credentials have been saved yet.
func (s *Store) Load() (Credentials, error) {
	var creds Credentials
	data, err := os.ReadFile(s.credPath)
	if err != nil {
		return creds, fmt.Errorf("fleetsecrets: read credentials: %w", err)
	}
	plaintext, err := s.open(data)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, fmt.Errorf("fleetsecrets: unmarshal credentials: %w", err)
	}
	return creds, nil
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("fleetsecrets: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fleetsecrets: init AEAD: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fleetsecrets: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) open(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("fleetsecrets: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fleetsecrets: init AEAD: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("fleetsecrets: credential file too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("fleetsecrets: decrypt credentials: %w", err)
	}
	return plaintext, nil
}

// rotateBackup copies the current credential file to a timestamped backup
// name, then trims the backup set down to maxBackups most-recent files.
func (s *Store) rotateBackup() error {
	data, err := os.ReadFile(s.credPath)
	if err != nil {
		return fmt.Errorf("fleetsecrets: read for backup: %w", err)
	}
	backupName := fmt.Sprintf("credentials.%s.bak", time.Now().UTC().Format("20060102T150405.000000000"))
	backupPath := filepath.Join(s.dir, backupName)
	if err := os.WriteFile(backupPath, data, filePerm); err != nil {
		return fmt.Errorf("fleetsecrets: write backup: %w", err)
	}
	return s.trimBackups()
}

func (s *Store) trimBackups() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("fleetsecrets: list store dir: %w", err)
	}
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "credentials.") && strings.HasSuffix(e.Name(), ".bak") {
			backups = append(backups, e.Name())
		}
	}
	sort.Strings(backups)
	if len(backups) <= maxBackups {
		return nil
	}
	toRemove := backups[:len(backups)-maxBackups]
	for _, name := range toRemove {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("fleetsecrets: trim backup %s: %w", name, err)
		}
	}
	return nil
}

// Backups lists the backup filenames currently retained, oldest first.
func (s *Store) Backups() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("fleetsecrets: list store dir: %w", err)
	}
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "credentials.") && strings.HasSuffix(e.Name(), ".bak") {
			backups = append(backups, e.Name())
		}
	}
	sort.Strings(backups)
	return backups, nil
}

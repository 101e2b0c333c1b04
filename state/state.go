package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the cache file created inside the state directory.
const FileName = "scan-cache.jsonl"

// Cache remembers the addresses parsed from each message so rescans can skip the
// parser. Keys are opaque; the scanner combines the message hash with its parser
// configuration.
type Cache interface {
	Lookup(key string) ([]string, bool)
	Store(key, messageID string, addresses []string) error
	Len() int
}

type entry struct {
	messageID string
	addresses []string
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

func (m *MemoryCache) Lookup(hash string) ([]string, bool) {
	if hash == "" {
		return nil, false
	}

	m.mu.RLock()
	e, ok := m.entries[hash]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return append([]string(nil), e.addresses...), true
}

func (m *MemoryCache) Store(hash, messageID string, addresses []string) error {
	m.put(hash, messageID, addresses)
	return nil
}

// put reports whether hash was new.
func (m *MemoryCache) put(hash, messageID string, addresses []string) bool {
	if hash == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[hash]; exists {
		return false
	}
	m.entries[hash] = entry{messageID: messageID, addresses: append([]string(nil), addresses...)}
	return true
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// FileCache is a MemoryCache backed by an append-only JSONL file.
type FileCache struct {
	*MemoryCache
	path    string
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Hash      string   `json:"hash"`
	MessageID string   `json:"message_id,omitempty"`
	Addresses []string `json:"addresses"`
}

func OpenFileCache(stateDir string) (*FileCache, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	c := &FileCache{
		MemoryCache: NewMemoryCache(),
		path:        filepath.Join(stateDir, FileName),
	}

	if err := c.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open scan cache for append: %w", err)
	}
	c.file = file
	c.writer = bufio.NewWriterSize(file, 64*1024)

	return c, nil
}

func (c *FileCache) Path() string {
	return c.path
}

func (c *FileCache) load() error {
	file, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open scan cache: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse scan cache line %d: %w", line, err)
		}
		c.put(record.Hash, record.MessageID, record.Addresses)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read scan cache: %w", err)
	}

	return nil
}

func (c *FileCache) Store(hash, messageID string, addresses []string) error {
	if !c.put(hash, messageID, addresses) {
		return nil
	}
	if addresses == nil {
		addresses = []string{}
	}

	data, err := json.Marshal(fileRecord{Hash: hash, MessageID: messageID, Addresses: addresses})
	if err != nil {
		return fmt.Errorf("encode scan cache record: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write scan cache record: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// Close flushes and closes the cache file.
func (c *FileCache) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.file == nil {
		return nil
	}

	var firstErr error
	if err := c.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush scan cache: %w", err)
	}
	if err := c.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync scan cache: %w", err)
	}
	if err := c.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close scan cache: %w", err)
	}
	c.file = nil

	return firstErr
}

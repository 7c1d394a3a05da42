package share

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/dlnacast-go/tool"
)

const DefaultShareTTL = 6 * time.Hour

// Item is one shared local file.
type Item struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	SharedAt time.Time `json:"sharedAt"`
}

// Store maps short-lived opaque tokens to local file paths so renderers can
// fetch media from the built-in HTTP server without ever seeing a
// filesystem path. Entries expire on their own; renderers re-request media
// only while a cast is active.
type Store struct {
	tokens *ttlworker.Cache[string, Item]
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	return &Store{tokens: ttlworker.NewCache[string, Item](ttl)}
}

// ShareFile registers path and returns its token. Only regular files are
// shareable.
func (s *Store) ShareFile(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %v", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("cannot share %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("cannot share %s: not a regular file", path)
	}
	token := tool.GenerateRandomUUID()
	s.tokens.Set(token, Item{
		Path:     absPath,
		Name:     info.Name(),
		Size:     info.Size(),
		SharedAt: time.Now(),
	})
	tool.DefaultLogger.Debugf("share: %s exposed as %s", absPath, token)
	return token, nil
}

// Resolve returns the shared item for token.
func (s *Store) Resolve(token string) (Item, bool) {
	item := s.tokens.Get(token)
	return item, item.Path != ""
}

// Revoke drops a token before its natural expiry.
func (s *Store) Revoke(token string) {
	s.tokens.Delete(token)
}

package api

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

type artifactDownload struct {
	filePath  string
	filename  string
	expiresAt time.Time
}

// downloadStore 发送产物（发送日志、失败清单）的一次性下载令牌
type downloadStore struct {
	mu    sync.Mutex
	items map[string]artifactDownload
}

func newDownloadStore() *downloadStore {
	return &downloadStore{
		items: make(map[string]artifactDownload),
	}
}

func (s *downloadStore) put(filePath, filename string, ttl time.Duration) (token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())

	token = newRandomToken(24)
	s.items[token] = artifactDownload{
		filePath:  filePath,
		filename:  filename,
		expiresAt: time.Now().Add(ttl),
	}
	return token
}

func (s *downloadStore) get(token string) (artifactDownload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())

	v, ok := s.items[token]
	if !ok {
		return artifactDownload{}, false
	}
	if time.Now().After(v.expiresAt) {
		delete(s.items, token)
		return artifactDownload{}, false
	}
	return v, true
}

func (s *downloadStore) delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, token)
}

func (s *downloadStore) purgeExpiredLocked(now time.Time) {
	for k, v := range s.items {
		if now.After(v.expiresAt) {
			delete(s.items, k)
		}
	}
}

func newRandomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

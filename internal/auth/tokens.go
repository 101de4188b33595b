package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/logger"
)

type digest [sha256.Size]byte

// AdminTokens authorizes administrative requests against a token file with
// one token per line. The file is reloaded when it changes; a missing file
// authorizes nothing.
type AdminTokens struct {
	file         string
	log          *logrus.Entry
	watcher      *fsnotify.Watcher
	refreshDelay time.Duration

	mu     sync.RWMutex
	tokens []digest

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewAdminTokens loads filePath and watches it for changes.
func NewAdminTokens(filePath string, debounce time.Duration, log *logrus.Entry) (*AdminTokens, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create token watcher")
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "resolve token file %s", filePath)
	}

	s := &AdminTokens{
		file:         abs,
		log:          logger.OrDefault(log, "auth"),
		watcher:      watcher,
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	if err := s.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(s.file)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(s.file))
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Close stops the file watcher and releases resources.
func (s *AdminTokens) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// Valid reports whether token is authorized. Comparison is constant time
// per stored token.
func (s *AdminTokens) Valid(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	candidate := sha256.Sum256([]byte(token))

	s.mu.RLock()
	defer s.mu.RUnlock()

	ok := 0
	for _, stored := range s.tokens {
		ok |= subtle.ConstantTimeCompare(candidate[:], stored[:])
	}
	return ok == 1
}

// Require wraps next so that only requests carrying a valid bearer token
// reach it.
func (s *AdminTokens) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Valid(BearerToken(r)) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="episode-finder"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

func (s *AdminTokens) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.file {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.scheduleRefresh()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("Token watcher error")
		case <-s.done:
			return
		}
	}
}

func (s *AdminTokens) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	s.refreshTimer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.refresh(); err != nil {
			s.log.WithError(err).Error("Token refresh failed")
		}

		s.refreshMu.Lock()
		s.refreshTimer = nil
		s.refreshMu.Unlock()
	})
}

func (s *AdminTokens) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.tokens = nil
			s.mu.Unlock()
			s.log.Warnf("Token file %s missing, admin endpoints are locked", s.file)
			return nil
		}
		return errors.Wrapf(err, "read token file %s", s.file)
	}

	seen := make(map[digest]struct{})
	var tokens []digest
	for _, line := range strings.Split(string(data), "\n") {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		d := digest(sha256.Sum256([]byte(token)))
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		tokens = append(tokens, d)
	}

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.log.Debugf("Loaded %s admin tokens", humanize.Comma(int64(len(tokens))))
	return nil
}

package server

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/merge"
)

type entry struct {
	id       string
	name     string // uploaded archive name, used for the download name
	profile  string
	session  *merge.Session
	created  time.Time
	lastUsed time.Time
}

type sessionInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Profile string    `json:"profile,omitempty"`
	Files   int       `json:"files"`
	Created time.Time `json:"created"`
}

func (s *Server) add(name, profileName string, sess *merge.Session) *entry {
	now := time.Now()
	e := &entry{
		id:       uuid.NewString(),
		name:     name,
		profile:  profileName,
		session:  sess,
		created:  now,
		lastUsed: now,
	}
	s.mu.Lock()
	s.sessions[e.id] = e
	s.mu.Unlock()
	s.logger.Info("session created", zap.String("id", e.id), zap.String("archive", name))
	return e
}

func (s *Server) get(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if ok {
		e.lastUsed = time.Now()
	}
	return e, ok
}

func (s *Server) remove(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		e.session.Close()
		s.logger.Info("session closed", zap.String("id", id))
	}
	return ok
}

func (s *Server) list() []sessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sessionInfo, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, sessionInfo{
			ID:      e.id,
			Name:    e.name,
			Profile: e.profile,
			Files:   len(e.session.ListFiles()),
			Created: e.created,
		})
	}
	return out
}

// reap closes sessions idle for longer than the configured TTL.
func (s *Server) reap(now time.Time) int {
	s.mu.Lock()
	var expired []string
	for id, e := range s.sessions {
		if now.Sub(e.lastUsed) > s.config.SessionTTL {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()
	for _, id := range expired {
		s.remove(id)
	}
	return len(expired)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.remove(id)
	}
}

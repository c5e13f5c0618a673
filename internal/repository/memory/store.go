// Package memory implements the repository interfaces in process memory.
// A single mutex per Store serializes every operation, which gives the same
// atomicity the Postgres conditional updates provide.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	users       map[string]*model.User
	tokens      map[string]*model.PairingToken
	connections map[string]*connectionRow
	plans       map[string]*model.CarePlan
	entries     map[string][]entryRow
}

type connectionRow struct {
	model.Connection
	seq int64
}

type entryRow struct {
	model.TimelineEntry
	seq int64
}

// New returns an empty store. A nil clock defaults to time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		now:         clock,
		users:       make(map[string]*model.User),
		tokens:      make(map[string]*model.PairingToken),
		connections: make(map[string]*connectionRow),
		plans:       make(map[string]*model.CarePlan),
		entries:     make(map[string][]entryRow),
	}
}

func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

func (s *Store) Tokens() repository.PairingTokenRepository { return &tokenRepo{s} }

func (s *Store) Connections() repository.ConnectionRepository { return &connectionRepo{s} }

func (s *Store) Workspaces() repository.WorkspaceRepository { return &workspaceRepo{s} }

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func copyToken(pt *model.PairingToken) *model.PairingToken {
	c := *pt
	c.UsedBy = append([]string(nil), pt.UsedBy...)
	return &c
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func sortConnections(rows []*connectionRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
}

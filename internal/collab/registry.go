package collab

import (
	"sort"
	"sync"

	"github.com/codecoalition/collabd/internal/domain"
)

// Registry is the process-wide table of connected users. Users are bucketed
// per room, each bucket guarded by its own lock, so rooms never contend with
// each other and a reader can never observe a half-applied mutation.
type Registry struct {
	mu         sync.RWMutex // guards rooms and connToRoom only
	rooms      map[string]*roomBucket
	connToRoom map[string]string
}

type roomBucket struct {
	mu    sync.RWMutex
	users map[string]*domain.SessionUser // keyed by connection id
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]*roomBucket),
		connToRoom: make(map[string]string),
	}
}

// AddUser registers a user. The connection id must not already be present
// anywhere, and the username must be free within the target room.
func (r *Registry) AddUser(user *domain.SessionUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connToRoom[user.ConnectionID]; exists {
		return domain.ErrAlreadyConnected
	}

	bucket, ok := r.rooms[user.RoomID]
	if !ok {
		bucket = &roomBucket{users: make(map[string]*domain.SessionUser)}
		r.rooms[user.RoomID] = bucket
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	for _, existing := range bucket.users {
		if existing.Username == user.Username {
			return domain.ErrUsernameTaken
		}
	}

	copied := *user
	bucket.users[user.ConnectionID] = &copied
	r.connToRoom[user.ConnectionID] = user.RoomID

	return nil
}

// AddUserWithGate registers the user while deciding admission and admin
// status under the registry lock, so two racing joins into a fresh room can
// never both become admin. A room with no admin admits the user as admin.
// When the room already has one, the user is admitted as a regular member if
// open is true; otherwise nothing is inserted and added is false so the
// caller can queue an approval request instead.
func (r *Registry) AddUserWithGate(user *domain.SessionUser, open bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connToRoom[user.ConnectionID]; exists {
		return false, domain.ErrAlreadyConnected
	}

	bucket, ok := r.rooms[user.RoomID]
	if !ok {
		bucket = &roomBucket{users: make(map[string]*domain.SessionUser)}
		r.rooms[user.RoomID] = bucket
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	hasAdmin := false
	for _, existing := range bucket.users {
		if existing.Username == user.Username {
			return false, domain.ErrUsernameTaken
		}
		if existing.IsAdmin {
			hasAdmin = true
		}
	}

	if hasAdmin && !open {
		return false, nil
	}

	user.IsAdmin = !hasAdmin
	copied := *user
	bucket.users[user.ConnectionID] = &copied
	r.connToRoom[user.ConnectionID] = user.RoomID

	return true, nil
}

// RemoveUser drops the user and, when the room empties, the room bucket.
// It reports the removed user and whether the room is now vacant.
func (r *Registry) RemoveUser(connectionID string) (domain.SessionUser, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.connToRoom[connectionID]
	if !ok {
		return domain.SessionUser{}, false, false
	}
	delete(r.connToRoom, connectionID)

	bucket := r.rooms[roomID]

	bucket.mu.Lock()
	user := bucket.users[connectionID]
	delete(bucket.users, connectionID)
	vacant := len(bucket.users) == 0
	bucket.mu.Unlock()

	if vacant {
		delete(r.rooms, roomID)
	}

	return *user, true, vacant
}

// ListUsers returns copies of every member of the room, ordered by username
// for deterministic output.
func (r *Registry) ListUsers(roomID string) []domain.SessionUser {
	bucket := r.bucket(roomID)
	if bucket == nil {
		return nil
	}

	bucket.mu.RLock()
	users := make([]domain.SessionUser, 0, len(bucket.users))
	for _, u := range bucket.users {
		users = append(users, *u)
	}
	bucket.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

func (r *Registry) FindUser(connectionID string) (domain.SessionUser, bool) {
	bucket, _ := r.bucketOf(connectionID)
	if bucket == nil {
		return domain.SessionUser{}, false
	}

	bucket.mu.RLock()
	defer bucket.mu.RUnlock()

	user, ok := bucket.users[connectionID]
	if !ok {
		return domain.SessionUser{}, false
	}
	return *user, true
}

func (r *Registry) RoomIDOf(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.connToRoom[connectionID]
	return roomID, ok
}

// UpdateUser applies fn to the user under the room lock and returns the
// updated copy. RoomID and ConnectionID changes are not supported.
func (r *Registry) UpdateUser(connectionID string, fn func(*domain.SessionUser)) (domain.SessionUser, bool) {
	bucket, _ := r.bucketOf(connectionID)
	if bucket == nil {
		return domain.SessionUser{}, false
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	user, ok := bucket.users[connectionID]
	if !ok {
		return domain.SessionUser{}, false
	}

	fn(user)
	return *user, true
}

// SameRoom reports whether both connections belong to the same room.
func (r *Registry) SameRoom(connectionID, otherConnectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.connToRoom[connectionID]
	if !ok {
		return false
	}
	otherRoomID, ok := r.connToRoom[otherConnectionID]
	return ok && roomID == otherRoomID
}

// UsernameExists reports whether a connected member of the room already holds
// the username.
func (r *Registry) UsernameExists(roomID, username string) bool {
	bucket := r.bucket(roomID)
	if bucket == nil {
		return false
	}

	bucket.mu.RLock()
	defer bucket.mu.RUnlock()

	for _, u := range bucket.users {
		if u.Username == username {
			return true
		}
	}
	return false
}

// AdminOf returns the room's admin, if the room currently has one.
func (r *Registry) AdminOf(roomID string) (domain.SessionUser, bool) {
	bucket := r.bucket(roomID)
	if bucket == nil {
		return domain.SessionUser{}, false
	}

	bucket.mu.RLock()
	defer bucket.mu.RUnlock()

	for _, u := range bucket.users {
		if u.IsAdmin {
			return *u, true
		}
	}
	return domain.SessionUser{}, false
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connToRoom)
}

func (r *Registry) bucket(roomID string) *roomBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) bucketOf(connectionID string) (*roomBucket, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.connToRoom[connectionID]
	if !ok {
		return nil, ""
	}
	return r.rooms[roomID], roomID
}

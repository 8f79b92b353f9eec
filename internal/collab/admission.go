package collab

import (
	"sync"

	"github.com/codecoalition/collabd/internal/domain"
)

// AdmissionOutcome is the result of a join attempt.
type AdmissionOutcome int

const (
	// AdmissionAccepted: the user is now in the registry.
	AdmissionAccepted AdmissionOutcome = iota
	// AdmissionPending: the request awaits the room admin's decision.
	AdmissionPending
	// AdmissionUsernameTaken: a connected member already holds the name.
	AdmissionUsernameTaken
)

// AdmissionController implements the join gate: the first member of a room
// (or any member while open-rooms mode is on) is admitted immediately, the
// first one as admin; everyone else becomes a pending request resolved by
// the admin.
type AdmissionController struct {
	registry  *Registry
	openRooms bool

	mu      sync.Mutex
	pending map[string]*domain.PendingJoinRequest // keyed by requester connection id
}

func NewAdmissionController(registry *Registry, openRooms bool) *AdmissionController {
	return &AdmissionController{
		registry:  registry,
		openRooms: openRooms,
		pending:   make(map[string]*domain.PendingJoinRequest),
	}
}

// RequestJoin processes a join attempt. On AdmissionAccepted the returned
// user has been added to the registry; on AdmissionPending the returned
// request has been recorded and must be routed to the room's admin. The
// sessionID correlates the attempt so a later acceptance can be matched to
// it by the client.
func (a *AdmissionController) RequestJoin(connectionID, username, roomID, sessionID string, mode domain.JoinMode) (AdmissionOutcome, *domain.SessionUser, *domain.PendingJoinRequest, error) {
	user, err := domain.NewSessionUser(connectionID, username, roomID, false)
	if err != nil {
		return 0, nil, nil, err
	}

	// The no-admin check and the insert happen under one registry lock:
	// the first member in (which covers mode=create on a fresh room)
	// becomes the admin, everyone racing it loses. Open-rooms mode skips
	// the gate for everyone after that.
	added, err := a.registry.AddUserWithGate(user, a.openRooms)
	if err == domain.ErrUsernameTaken {
		return AdmissionUsernameTaken, nil, nil, nil
	}
	if err != nil {
		return 0, nil, nil, err
	}
	if added {
		return AdmissionAccepted, user, nil, nil
	}

	request := domain.NewPendingJoinRequest(connectionID, username, roomID, sessionID)

	a.mu.Lock()
	a.pending[connectionID] = request
	a.mu.Unlock()

	return AdmissionPending, nil, request, nil
}

// Resolve applies the admin's decision to a pending request. The resolver
// must be the admin of the request's room. On approval the requester is
// admitted (and returned); either way the pending entry is cleared.
func (a *AdmissionController) Resolve(adminConnectionID, requesterConnectionID string, approved bool) (*domain.PendingJoinRequest, *domain.SessionUser, error) {
	a.mu.Lock()
	request, ok := a.pending[requesterConnectionID]
	a.mu.Unlock()

	if !ok {
		return nil, nil, domain.ErrNoPendingRequest
	}

	admin, found := a.registry.FindUser(adminConnectionID)
	if !found || !admin.IsAdmin || admin.RoomID != request.RoomID {
		return nil, nil, domain.ErrNotAdmin
	}

	a.mu.Lock()
	delete(a.pending, requesterConnectionID)
	a.mu.Unlock()

	if !approved {
		return request, nil, nil
	}

	user, err := domain.NewSessionUser(requesterConnectionID, request.Username, request.RoomID, false)
	if err != nil {
		return request, nil, err
	}
	// Gate insert again: the admin may have left since the check above, in
	// which case the approved requester enters an empty room as its admin.
	if _, err := a.registry.AddUserWithGate(user, true); err != nil {
		// The name may have been taken while the request was pending.
		return request, nil, err
	}

	return request, user, nil
}

// CancelByConnection drops the pending request of a disconnecting requester.
func (a *AdmissionController) CancelByConnection(connectionID string) (*domain.PendingJoinRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	request, ok := a.pending[connectionID]
	if !ok {
		return nil, false
	}
	delete(a.pending, connectionID)
	return request, true
}

// PendingForRoom lists the requests currently waiting on the room's admin.
func (a *AdmissionController) PendingForRoom(roomID string) []domain.PendingJoinRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	var requests []domain.PendingJoinRequest
	for _, request := range a.pending {
		if request.RoomID == roomID {
			requests = append(requests, *request)
		}
	}
	return requests
}

func (a *AdmissionController) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

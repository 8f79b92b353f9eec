package sdk

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "candidate"
)

// signalEnvelope travels inside screen-share-signal payloads. The server
// relays it opaquely; only the two peers interpret it.
type signalEnvelope struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// ScreenShare manages WebRTC peers in a star around the sharer: the sharing
// member keeps one PeerConnection per viewer, every viewer keeps a single
// PeerConnection back to the sharer. All signaling rides the room's websocket.
type ScreenShare struct {
	client *Client

	// OnTrack delivers the remote screen track on the viewer side.
	OnTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	// OnStarted and OnStopped track the room's share state for rendering.
	OnStarted func(sharerConnectionID, sharerUsername string)
	OnStopped func()

	mu         sync.Mutex
	sharing    bool
	localTrack webrtc.TrackLocal
	viewerPCs  map[string]*webrtc.PeerConnection

	sharerID string
	sharerPC *webrtc.PeerConnection

	config webrtc.Configuration
}

func newScreenShare(client *Client) *ScreenShare {
	return &ScreenShare{
		client:    client,
		viewerPCs: make(map[string]*webrtc.PeerConnection),
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
			},
		},
	}
}

// Start begins sharing the given track with every current member of the
// room. Fails if this client or another member already shares.
func (s *ScreenShare) Start(track webrtc.TrackLocal) error {
	s.mu.Lock()
	if s.sharing {
		s.mu.Unlock()
		return fmt.Errorf("already sharing")
	}
	if s.sharerID != "" {
		s.mu.Unlock()
		return fmt.Errorf("another member is already sharing")
	}
	s.sharing = true
	s.localTrack = track
	s.mu.Unlock()

	if err := s.client.send(ws.ScreenShareStart, nil); err != nil {
		s.mu.Lock()
		s.sharing = false
		s.localTrack = nil
		s.mu.Unlock()
		return err
	}

	for _, peer := range s.client.Peers() {
		if err := s.offerTo(peer.ConnectionID); err != nil {
			s.client.emitError(err)
		}
	}
	return nil
}

// Stop ends the local share and tears down every viewer connection.
func (s *ScreenShare) Stop() error {
	s.mu.Lock()
	if !s.sharing {
		s.mu.Unlock()
		return nil
	}
	s.sharing = false
	s.localTrack = nil
	pcs := s.viewerPCs
	s.viewerPCs = make(map[string]*webrtc.PeerConnection)
	s.mu.Unlock()

	for _, pc := range pcs {
		pc.Close()
	}

	return s.client.send(ws.ScreenShareStop, nil)
}

// offerTo dials one viewer: a fresh PeerConnection carrying the local track,
// an offer over the relay, candidates trickled as they surface.
func (s *ScreenShare) offerTo(connectionID string) error {
	pc, err := webrtc.NewPeerConnection(s.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	s.mu.Lock()
	if !s.sharing {
		s.mu.Unlock()
		pc.Close()
		return nil
	}
	if existing, ok := s.viewerPCs[connectionID]; ok {
		existing.Close()
	}
	s.viewerPCs[connectionID] = pc
	track := s.localTrack
	s.mu.Unlock()

	if _, err := pc.AddTrack(track); err != nil {
		s.dropViewer(connectionID)
		return fmt.Errorf("failed to add track: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		s.signal(connectionID, signalEnvelope{Type: signalCandidate, Candidate: &init})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			s.dropViewer(connectionID)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.dropViewer(connectionID)
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		s.dropViewer(connectionID)
		return fmt.Errorf("failed to set local description: %w", err)
	}

	s.signal(connectionID, signalEnvelope{Type: signalOffer, SDP: offer.SDP})
	return nil
}

func (s *ScreenShare) dropViewer(connectionID string) {
	s.mu.Lock()
	pc, ok := s.viewerPCs[connectionID]
	delete(s.viewerPCs, connectionID)
	s.mu.Unlock()

	if ok {
		pc.Close()
	}
}

// handlePeerJoined offers the running share to a member who joined after it
// started.
func (s *ScreenShare) handlePeerJoined(connectionID string) {
	s.mu.Lock()
	sharing := s.sharing
	s.mu.Unlock()

	if !sharing {
		return
	}
	if err := s.offerTo(connectionID); err != nil {
		s.client.emitError(err)
	}
}

func (s *ScreenShare) handlePeerLeft(connectionID string) {
	s.dropViewer(connectionID)

	s.mu.Lock()
	wasSharer := s.sharerID == connectionID
	if wasSharer {
		s.sharerID = ""
	}
	pc := s.sharerPC
	if wasSharer {
		s.sharerPC = nil
	}
	s.mu.Unlock()

	if wasSharer && pc != nil {
		pc.Close()
	}
}

func (s *ScreenShare) handleRemote(msg *ws.Message) {
	switch msg.Event {
	case ws.ScreenShareStarted, ws.ScreenShareStatus:
		var payload ws.ScreenShareStatePayload
		if msg.Decode(&payload) != nil || payload.SharerConnectionID == "" {
			return
		}
		if payload.SharerConnectionID == s.client.Self().ConnectionID {
			return
		}

		s.mu.Lock()
		s.sharerID = payload.SharerConnectionID
		s.mu.Unlock()

		if s.OnStarted != nil {
			s.OnStarted(payload.SharerConnectionID, payload.SharerUsername)
		}

	case ws.ScreenShareStopped:
		s.mu.Lock()
		s.sharerID = ""
		pc := s.sharerPC
		s.sharerPC = nil
		s.mu.Unlock()

		if pc != nil {
			pc.Close()
		}
		if s.OnStopped != nil {
			s.OnStopped()
		}

	case ws.ScreenShareSignal:
		var payload ws.ScreenShareSignalPayload
		if msg.Decode(&payload) != nil {
			return
		}
		var envelope signalEnvelope
		if json.Unmarshal(payload.Payload, &envelope) != nil {
			return
		}
		s.handleSignal(payload.FromConnectionID, envelope)
	}
}

func (s *ScreenShare) handleSignal(from string, envelope signalEnvelope) {
	switch envelope.Type {
	case signalOffer:
		if err := s.acceptOffer(from, envelope.SDP); err != nil {
			s.client.emitError(err)
		}

	case signalAnswer:
		s.mu.Lock()
		pc := s.viewerPCs[from]
		s.mu.Unlock()
		if pc == nil {
			return
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: envelope.SDP}
		if err := pc.SetRemoteDescription(answer); err != nil {
			s.client.emitError(fmt.Errorf("failed to set remote description (answer): %w", err))
		}

	case signalCandidate:
		if envelope.Candidate == nil {
			return
		}
		s.mu.Lock()
		pc := s.viewerPCs[from]
		if pc == nil && from == s.sharerID {
			pc = s.sharerPC
		}
		s.mu.Unlock()
		if pc == nil {
			return
		}
		if err := pc.AddICECandidate(*envelope.Candidate); err != nil {
			s.client.emitError(fmt.Errorf("failed to add ice candidate: %w", err))
		}
	}
}

// acceptOffer runs the viewer side: answer the sharer's offer and surface the
// incoming track through OnTrack.
func (s *ScreenShare) acceptOffer(from, sdp string) error {
	pc, err := webrtc.NewPeerConnection(s.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	s.mu.Lock()
	if s.sharerPC != nil {
		s.sharerPC.Close()
	}
	s.sharerPC = pc
	s.sharerID = from
	s.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if s.OnTrack != nil {
			s.OnTrack(track, receiver)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		s.signal(from, signalEnvelope{Type: signalCandidate, Candidate: &init})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			s.mu.Lock()
			if s.sharerPC == pc {
				s.sharerPC = nil
			}
			s.mu.Unlock()
			pc.Close()
		}
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	s.signal(from, signalEnvelope{Type: signalAnswer, SDP: answer.SDP})
	return nil
}

func (s *ScreenShare) signal(target string, envelope signalEnvelope) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		s.client.emitError(err)
		return
	}

	if err := s.client.send(ws.ScreenShareSignal, ws.ScreenShareSignalPayload{
		TargetConnectionID: target,
		Payload:            raw,
	}); err != nil {
		s.client.emitError(err)
	}
}

// teardown closes every peer connection, sharer or viewer side.
func (s *ScreenShare) teardown() {
	s.mu.Lock()
	pcs := s.viewerPCs
	s.viewerPCs = make(map[string]*webrtc.PeerConnection)
	sharerPC := s.sharerPC
	s.sharerPC = nil
	s.sharing = false
	s.localTrack = nil
	s.sharerID = ""
	s.mu.Unlock()

	for _, pc := range pcs {
		pc.Close()
	}
	if sharerPC != nil {
		sharerPC.Close()
	}
}

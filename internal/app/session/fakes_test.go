package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/o2o/internal/adapters/signalclient"
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/pion/webrtc/v4"
)

// fakePC follows the signaling state rules of a real peer connection closely enough for
// the engine: descriptions are real SDP, lines are positional, callbacks are async.
type fakePC struct {
	mu sync.Mutex

	id        int
	ev        core.PeerEvents
	signaling webrtc.SignalingState

	pendingLocal, currentLocal   *webrtc.SessionDescription
	pendingRemote, currentRemote *webrtc.SessionDescription

	lines     []*fakeLine
	applied   []webrtc.ICECandidateInit
	version   int
	closed    bool
	connected bool

	offerGate    chan struct{}
	offersMade   int
	remoteOffers int
	rollbacks    int
	answerErr    error
}

type fakeLine struct {
	kind       webrtc.RTPCodecType
	track      webrtc.TrackLocal
	remoteSeen bool
}

type fakeRemoteTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t fakeRemoteTrack) ID() string                { return t.id }
func (t fakeRemoteTrack) StreamID() string          { return "remote" }
func (t fakeRemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }

type section struct {
	video   bool
	sending bool
	ufrag   string
}

func parseSections(sdp string) []section {
	var out []section
	for _, line := range strings.Split(sdp, "\r\n") {
		switch {
		case strings.HasPrefix(line, "m="):
			out = append(out, section{video: strings.HasPrefix(line, "m=video")})
		case len(out) == 0:
		case line == "a=sendrecv":
			out[len(out)-1].sending = true
		case strings.HasPrefix(line, "a=ice-ufrag:"):
			out[len(out)-1].ufrag = strings.TrimPrefix(line, "a=ice-ufrag:")
		}
	}
	return out
}

func (p *fakePC) ufrag() string { return fmt.Sprintf("ufrag%d", p.id) }

func (p *fakePC) fingerprint() string {
	parts := make([]string, 32)
	for i := range parts {
		parts[i] = fmt.Sprintf("%02X", byte(p.id*37+i*11))
	}
	return strings.Join(parts, ":")
}

func (p *fakePC) describe(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\no=- %d %d IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n", 1000+p.id, p.version)
	fmt.Fprintf(&b, "a=fingerprint:sha-256 %s\r\n", p.fingerprint())
	for i := 0; i < n && i < len(p.lines); i++ {
		l := p.lines[i]
		if l.kind == webrtc.RTPCodecTypeVideo {
			b.WriteString("m=video 9 UDP/TLS/RTP/SAVPF 96 102\r\n")
		} else {
			b.WriteString("m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n")
		}
		dir := "recvonly"
		if l.track != nil {
			dir = "sendrecv"
		}
		fmt.Fprintf(&b, "c=IN IP4 0.0.0.0\r\na=mid:%d\r\na=ice-ufrag:%s\r\na=ice-pwd:fakepasswordfakepassword00\r\na=%s\r\n", i, p.ufrag(), dir)
		if l.kind == webrtc.RTPCodecTypeVideo {
			b.WriteString("a=rtpmap:96 VP8/90000\r\na=rtpmap:102 H264/90000\r\n")
		} else {
			b.WriteString("a=rtpmap:111 opus/48000/2\r\n")
		}
	}
	return b.String()
}

// fire must be called with p.mu held.
func (p *fakePC) fire(f func(core.PeerEvents)) {
	if p.closed {
		return
	}
	ev := p.ev
	go f(ev)
}

func (p *fakePC) localCandidate() {
	mid, idx, ufrag := "0", uint16(0), p.ufrag()
	c := webrtc.ICECandidateInit{
		Candidate:        fmt.Sprintf("candidate:%d 1 udp 2122260223 10.0.0.%d 50000 typ host", p.id, p.id),
		SDPMid:           &mid,
		SDPMLineIndex:    &idx,
		UsernameFragment: &ufrag,
	}
	p.fire(func(ev core.PeerEvents) {
		if ev.OnICECandidate != nil {
			ev.OnICECandidate(c)
		}
	})
}

func (p *fakePC) announceTracks(sdp string) {
	for i, sec := range parseSections(sdp) {
		if i >= len(p.lines) || !sec.sending || p.lines[i].remoteSeen {
			continue
		}
		p.lines[i].remoteSeen = true
		track := fakeRemoteTrack{id: fmt.Sprintf("pc%d-line%d", p.id, i), kind: p.lines[i].kind}
		line := i
		p.fire(func(ev core.PeerEvents) {
			if ev.OnTrack != nil {
				ev.OnTrack(line, track)
			}
		})
	}
}

func (p *fakePC) maybeConnected() {
	if p.connected || p.currentLocal == nil || p.currentRemote == nil {
		return
	}
	p.connected = true
	p.fire(func(ev core.PeerEvents) {
		if ev.OnConnectionState != nil {
			ev.OnConnectionState(webrtc.PeerConnectionStateConnected)
		}
	})
}

func (p *fakePC) negotiationNeeded() {
	if p.signaling == webrtc.SignalingStateStable {
		p.fire(func(ev core.PeerEvents) {
			if ev.OnNegotiationNeeded != nil {
				ev.OnNegotiationNeeded()
			}
		})
	}
}

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	gate := p.offerGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, errors.New("connection closed")
	}
	if p.signaling != webrtc.SignalingStateStable && p.signaling != webrtc.SignalingStateHaveLocalOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("invalid signaling state %s for offer", p.signaling)
	}
	p.version++
	p.offersMade++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.describe(len(p.lines))}, nil
}

func (p *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signaling != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("invalid signaling state %s for answer", p.signaling)
	}
	p.version++
	n := len(parseSections(p.pendingRemote.SDP))
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.describe(n)}, nil
}

func (p *fakePC) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch d.Type {
	case webrtc.SDPTypeRollback:
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("cannot rollback in signaling state %s", p.signaling)
		}
		p.pendingLocal = nil
		p.signaling = webrtc.SignalingStateStable
		p.rollbacks++
	case webrtc.SDPTypeOffer:
		if p.signaling != webrtc.SignalingStateStable && p.signaling != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("invalid signaling state %s", p.signaling)
		}
		p.pendingLocal = &d
		p.signaling = webrtc.SignalingStateHaveLocalOffer
		p.localCandidate()
	case webrtc.SDPTypeAnswer:
		if p.signaling != webrtc.SignalingStateHaveRemoteOffer {
			return fmt.Errorf("invalid signaling state %s", p.signaling)
		}
		p.currentLocal = &d
		p.currentRemote = p.pendingRemote
		p.pendingRemote = nil
		p.signaling = webrtc.SignalingStateStable
		p.localCandidate()
		p.maybeConnected()
	default:
		return fmt.Errorf("unsupported description type %s", d.Type)
	}
	return nil
}

func (p *fakePC) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch d.Type {
	case webrtc.SDPTypeOffer:
		if p.signaling != webrtc.SignalingStateStable {
			return fmt.Errorf("invalid signaling state %s for remote offer", p.signaling)
		}
		p.remoteOffers++
		p.pendingRemote = &d
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
		for i, sec := range parseSections(d.SDP) {
			if i < len(p.lines) {
				continue
			}
			kind := webrtc.RTPCodecTypeAudio
			if sec.video {
				kind = webrtc.RTPCodecTypeVideo
			}
			p.lines = append(p.lines, &fakeLine{kind: kind})
		}
		p.announceTracks(d.SDP)
	case webrtc.SDPTypeAnswer:
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("invalid signaling state %s for remote answer", p.signaling)
		}
		if p.answerErr != nil {
			return p.answerErr
		}
		p.currentLocal = p.pendingLocal
		p.pendingLocal = nil
		p.currentRemote = &d
		p.signaling = webrtc.SignalingStateStable
		p.announceTracks(d.SDP)
		p.maybeConnected()
	default:
		return fmt.Errorf("unsupported description type %s", d.Type)
	}
	return nil
}

func (p *fakePC) remote() *webrtc.SessionDescription {
	if p.pendingRemote != nil {
		return p.pendingRemote
	}
	return p.currentRemote
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	remote := p.remote()
	if remote == nil {
		return errors.New("remote description not set")
	}
	if secs := parseSections(remote.SDP); c.UsernameFragment != nil && len(secs) > 0 && *c.UsernameFragment != secs[0].ufrag {
		return fmt.Errorf("unknown ufrag %s", *c.UsernameFragment)
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *fakePC) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaling
}

func (p *fakePC) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingLocal != nil {
		return p.pendingLocal
	}
	return p.currentLocal
}

func (p *fakePC) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote()
}

func (p *fakePC) AddLine(kind domain.MediaKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, &fakeLine{kind: codecTypeOf(kind)})
	p.negotiationNeeded()
	return nil
}

func (p *fakePC) LineKinds() []webrtc.RTPCodecType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]webrtc.RTPCodecType, len(p.lines))
	for i, l := range p.lines {
		out[i] = l.kind
	}
	return out
}

func (p *fakePC) SetLineTrack(index int, track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index >= len(p.lines) {
		return fmt.Errorf("no line %d", index)
	}
	p.lines[index].track = track
	p.negotiationNeeded()
	return nil
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.ev = core.PeerEvents{}
	return nil
}

func (p *fakePC) lineTrack(i int) webrtc.TrackLocal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.lines) {
		return nil
	}
	return p.lines[i].track
}

func (p *fakePC) appliedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.applied))
	for i, c := range p.applied {
		out[i] = c.Candidate
	}
	return out
}

func (p *fakePC) counters() (offers, remoteOffers, rollbacks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offersMade, p.remoteOffers, p.rollbacks
}

func (p *fakePC) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeFactory struct {
	mu     sync.Mutex
	base   int
	pcs    []*fakePC
	onOpen func(*fakePC)
}

func (f *fakeFactory) NewPeerConnection(ev core.PeerEvents) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := &fakePC{id: f.base + len(f.pcs) + 1, ev: ev, signaling: webrtc.SignalingStateStable}
	if f.onOpen != nil {
		f.onOpen(pc)
	}
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pcs)
}

func (f *fakeFactory) latest() *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pcs) == 0 {
		return nil
	}
	return f.pcs[len(f.pcs)-1]
}

// link stands in for the rendezvous server between two sessions. While held, messages
// stay queued on the sending side.
type link struct {
	mu   sync.Mutex
	held bool
}

func (l *link) hold() {
	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
}

func (l *link) isHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// release takes both queues first and only then delivers, so messages already sent by
// either side cross in flight.
func (l *link) release(a, b *endpoint) {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	ba, bb := a.queue.Flush(), b.queue.Flush()
	a.deliver(ba)
	b.deliver(bb)
	a.kick()
	b.kick()
}

type endpoint struct {
	link  *link
	queue *signalclient.Queue
	wake  chan struct{}
	peer  *Session

	mu     sync.Mutex
	queued []core.Message
	sent   []core.Message
}

func newEndpoint(l *link) *endpoint {
	return &endpoint{link: l, queue: signalclient.NewQueue(0), wake: make(chan struct{}, 1)}
}

func (e *endpoint) Send(m core.Message) {
	e.mu.Lock()
	e.queued = append(e.queued, m)
	e.mu.Unlock()
	e.queue.Push(m)
	e.kick()
}

func (e *endpoint) Discard(types ...core.MessageType) { e.queue.Discard(types...) }

func (e *endpoint) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *endpoint) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}
		if e.link != nil && e.link.isHeld() {
			continue
		}
		e.deliver(e.queue.Flush())
	}
}

func (e *endpoint) deliver(batch []core.Message) {
	for _, m := range batch {
		e.mu.Lock()
		e.sent = append(e.sent, m)
		e.mu.Unlock()
		if e.peer != nil {
			e.peer.OnMessage(m)
		}
	}
}

func (e *endpoint) sentOf(t core.MessageType) []core.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []core.Message
	for _, m := range e.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (e *endpoint) queuedOf(t core.MessageType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.queued {
		if m.Type == t {
			n++
		}
	}
	return n
}

type recordingObserver struct {
	mu     sync.Mutex
	tracks []domain.MediaKind
	states []domain.ConnectionState
	facts  []domain.SessionFacts
	fatal  []string
}

func (o *recordingObserver) OnRemoteTrack(kind domain.MediaKind, _ core.RemoteTrack) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracks = append(o.tracks, kind)
}

func (o *recordingObserver) OnConnectionState(state domain.ConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) OnSessionFacts(f domain.SessionFacts) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.facts = append(o.facts, f)
}

func (o *recordingObserver) OnFatalError(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fatal = append(o.fatal, reason)
}

func (o *recordingObserver) hasTrack(k domain.MediaKind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tracks {
		if t == k {
			return true
		}
	}
	return false
}

func (o *recordingObserver) sawState(s domain.ConnectionState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range o.states {
		if st == s {
			return true
		}
	}
	return false
}

func (o *recordingObserver) lastFacts() (domain.SessionFacts, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.facts) == 0 {
		return domain.SessionFacts{}, false
	}
	return o.facts[len(o.facts)-1], true
}

const (
	testRoom     = domain.RoomID("abc123abc123abc123")
	testDebounce = 50 * time.Millisecond
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func snapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func audioTrack(t *testing.T, id string) webrtc.TrackLocal {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "o2o")
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func videoTrack(t *testing.T, id string) webrtc.TrackLocal {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, id, "o2o")
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

type side struct {
	s      *Session
	end    *endpoint
	pcs    *fakeFactory
	obs    *recordingObserver
	runErr chan error
}

type pair struct {
	link    *link
	init    *side
	resp    *side
	quality domain.Quality
}

func newSide(t *testing.T, l *link, create bool, base int) *side {
	t.Helper()
	sd := &side{
		end:    newEndpoint(l),
		pcs:    &fakeFactory{base: base},
		obs:    &recordingObserver{},
		runErr: make(chan error, 1),
	}
	s, err := New(Options{
		Room:       testRoom,
		Create:     create,
		Quality:    domain.DefaultQuality(),
		Debounce:   testDebounce,
		RetryDelay: 30 * time.Millisecond,
	}, sd.end, sd.pcs, sd.obs)
	if err != nil {
		t.Fatal(err)
	}
	sd.s = s
	return sd
}

func (sd *side) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { sd.runErr <- sd.s.Run(ctx) }()
	go sd.end.pump(ctx)
	t.Cleanup(cancel)
}

// newPair wires an Initiator and a Responder through a link, opens both channels and
// plays the server's ready notice. Tracks returned by attach are attached before ready.
func newPair(t *testing.T, attach func(p *pair)) *pair {
	t.Helper()
	l := &link{}
	p := &pair{
		link:    l,
		init:    newSide(t, l, true, 0),
		resp:    newSide(t, l, false, 100),
		quality: domain.DefaultQuality(),
	}
	p.init.end.peer = p.resp.s
	p.resp.end.peer = p.init.s
	p.init.start(t)
	p.resp.start(t)

	p.init.s.OnOpen()
	p.resp.s.OnOpen()
	if attach != nil {
		attach(p)
	}
	p.ready()
	return p
}

func (p *pair) ready() {
	q := p.quality
	p.init.s.OnMessage(core.Message{Type: core.TypeReady, Room: testRoom, Quality: &q})
	p.resp.s.OnMessage(core.Message{Type: core.TypeReady, Room: testRoom, Quality: &q})
}

func (p *pair) settled(t *testing.T) {
	t.Helper()
	eventually(t, "both sides stable", func() bool {
		for _, sd := range []*side{p.init, p.resp} {
			pc := sd.pcs.latest()
			if pc == nil || pc.SignalingState() != webrtc.SignalingStateStable || pc.RemoteDescription() == nil {
				return false
			}
			if snap, err := sd.s.Snapshot(); err != nil || snap.Negotiation != Stable {
				return false
			}
		}
		return true
	})
}

func (p *pair) offers() int {
	return len(p.init.end.sentOf(core.TypeOffer)) + len(p.resp.end.sentOf(core.TypeOffer))
}

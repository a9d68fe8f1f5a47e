package delegation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/torbobase/core/internal/eventbus"
	"go.uber.org/zap"
)

// MaxAcceptedAccessLevel is the delegation engine's fixed ceiling on
// required_access_level for inbound tasks: 2 (READ).
const MaxAcceptedAccessLevel = 2

// PeerDirectory supplies the set of known peers to probe for capability
// refresh; it is expected to be backed by whatever node-discovery
// mechanism the deployment uses (static config, DNS-SD, a directory
// service — the engine doesn't care).
type PeerDirectory interface {
	Peers() []Peer
}

// StaticPeerDirectory is the simplest PeerDirectory: a fixed peer list
// configured at startup.
type StaticPeerDirectory struct {
	peers []Peer
}

func NewStaticPeerDirectory(peers []Peer) *StaticPeerDirectory {
	return &StaticPeerDirectory{peers: peers}
}

func (d *StaticPeerDirectory) Peers() []Peer {
	return append([]Peer(nil), d.peers...)
}

// Config holds the delegation engine's tunables, all sourced from the
// process configuration object per spec.md §9.
type Config struct {
	DataDir              string
	SelfHost             string
	SelfPort             int
	DefaultTimeout       time.Duration
	CapabilityTTL        time.Duration
	MaxConcurrentInbound int
	PeerRequestTimeout   time.Duration
	WatchdogInterval     time.Duration
}

// Engine is the cross-node delegation component: it owns the outbound and
// inbound tracking tables and the peer capability cache, all guarded by a
// single mutex so external callers observe each operation as atomic.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	keys      KeyService
	directory PeerDirectory
	sink      TaskSink
	bus       *eventbus.Bus
	client    *peerClient
	store     *stateStore
	logger    *zap.Logger

	outbound map[string]outboundEntry
	inbound  map[string]inboundEntry
	capCache map[string]cachedCapabilities

	displayName string
	skillIDs    []string
	agentIDs    []string
}

// New constructs an Engine. Call Load to restore any previously persisted
// delegation state before serving traffic.
func New(cfg Config, keys KeyService, directory PeerDirectory, sink TaskSink, bus *eventbus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentInbound == 0 {
		cfg.MaxConcurrentInbound = 2
	}
	if cfg.CapabilityTTL == 0 {
		cfg.CapabilityTTL = 5 * time.Minute
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 300 * time.Second
	}
	if cfg.PeerRequestTimeout == 0 {
		cfg.PeerRequestTimeout = 10 * time.Second
	}
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = 30 * time.Second
	}

	return &Engine{
		cfg:       cfg,
		keys:      keys,
		directory: directory,
		sink:      sink,
		bus:       bus,
		client:    newPeerClient(cfg.PeerRequestTimeout),
		store:     newStateStore(cfg.DataDir),
		logger:    logger,
		outbound:  make(map[string]outboundEntry),
		inbound:   make(map[string]inboundEntry),
		capCache:  make(map[string]cachedCapabilities),
	}
}

// SetLocalCapabilities sets the skill and agent ids this node advertises
// in GetCapabilities.
func (e *Engine) SetLocalCapabilities(displayName string, skillIDs, agentIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.displayName = displayName
	e.skillIDs = skillIDs
	e.agentIDs = agentIDs
}

// Load restores persisted outbound/inbound entries from disk.
func (e *Engine) Load() error {
	state, err := e.store.load()
	if err != nil {
		return fmt.Errorf("load delegation state: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ob := range state.Outbound {
		e.outbound[ob.TaskID] = ob
	}
	for _, ib := range state.Inbound {
		e.inbound[ib.TaskID] = ib
	}
	return nil
}

// persistLocked writes the current outbound/inbound tables to disk.
// Caller must hold e.mu.
func (e *Engine) persistLocked() {
	state := persistedState{}
	for _, ob := range e.outbound {
		state.Outbound = append(state.Outbound, ob)
	}
	for _, ib := range e.inbound {
		state.Inbound = append(state.Inbound, ib)
	}
	if err := e.store.save(state); err != nil {
		e.logger.Error("delegation: persist state failed", zap.Error(err))
	}
}

// GetCapabilities returns this node's current capabilities document.
func (e *Engine) GetCapabilities() NodeCapabilities {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NodeCapabilities{
		NodeID:                 e.keys.NodeID(),
		DisplayName:            e.displayName,
		SkillIDs:               e.skillIDs,
		AgentIDs:               e.agentIDs,
		MaxAccessLevel:         MaxAcceptedAccessLevel,
		AcceptsDelegation:      true,
		CurrentLoad:            e.sink.ActiveCount(),
		MaxConcurrentDelegated: e.cfg.MaxConcurrentInbound,
		UpdatedAt:              time.Now().UTC(),
	}
}

// PublicKeyBase64 returns this node's own Ed25519 public key, base64
// encoded, for advertising via GET /community/identity.
func (e *Engine) PublicKeyBase64() string {
	return e.keys.PublicKeyBase64()
}

// RefreshPeerCapabilities requests /delegation/capabilities from every
// peer in the directory and updates the cache entry for each. It also
// discovers and records the peer's public key if it isn't already known,
// since capability refresh and key discovery both need the same
// round trip to every peer.
func (e *Engine) RefreshPeerCapabilities(ctx context.Context) {
	for _, peer := range e.directory.Peers() {
		caps, err := e.client.fetchCapabilities(ctx, peer.Host, peer.Port)
		if err != nil {
			e.logger.Warn("delegation: refresh peer capabilities failed",
				zap.String("peer", peer.NodeID), zap.Error(err))
			continue
		}
		e.mu.Lock()
		e.capCache[peer.NodeID] = cachedCapabilities{capabilities: caps, cachedAt: time.Now().UTC()}
		e.mu.Unlock()

		e.ensurePeerKey(ctx, peer)
	}
}

// ensurePeerKey discovers and records peer's public key via
// GET /community/identity if it isn't already known to the key service.
func (e *Engine) ensurePeerKey(ctx context.Context, peer Peer) {
	if _, ok := e.keys.PeerPublicKey(peer.NodeID); ok {
		return
	}
	key, err := e.client.fetchPeerPublicKey(ctx, peer.Host, peer.Port)
	if err != nil {
		e.logger.Warn("delegation: peer key discovery failed",
			zap.String("peer", peer.NodeID), zap.Error(err))
		return
	}
	e.keys.SetPeerPublicKey(peer.NodeID, key)
}

// refreshStaleLocked refreshes a single peer's cache entry synchronously
// if it is stale or absent. Caller must hold e.mu; it releases and
// reacquires the lock around the network call.
func (e *Engine) refreshStaleLocked(ctx context.Context, peer Peer) {
	entry, ok := e.capCache[peer.NodeID]
	if ok && time.Since(entry.cachedAt) <= e.cfg.CapabilityTTL {
		return
	}
	e.mu.Unlock()
	caps, err := e.client.fetchCapabilities(ctx, peer.Host, peer.Port)
	e.ensurePeerKey(ctx, peer)
	e.mu.Lock()
	if err != nil {
		e.logger.Warn("delegation: lazy refresh failed", zap.String("peer", peer.NodeID), zap.Error(err))
		return
	}
	e.capCache[peer.NodeID] = cachedCapabilities{capabilities: caps, cachedAt: time.Now().UTC()}
}

// FindBestPeer returns the peer (with refreshed capabilities) holding
// accepts_delegation, sufficient max_access_level, spare delegated
// capacity, and every required skill, preferring minimum current_load.
func (e *Engine) FindBestPeer(ctx context.Context, requiredSkills []string, requiredAccessLevel int) (Peer, NodeCapabilities, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var best Peer
	var bestCaps NodeCapabilities
	found := false

	for _, peer := range e.directory.Peers() {
		e.refreshStaleLocked(ctx, peer)
		entry, ok := e.capCache[peer.NodeID]
		if !ok {
			continue
		}
		caps := entry.capabilities
		if !caps.AcceptsDelegation {
			continue
		}
		if caps.MaxAccessLevel < requiredAccessLevel {
			continue
		}
		if caps.CurrentLoad >= caps.MaxConcurrentDelegated {
			continue
		}
		if !hasAllSkills(caps.SkillIDs, requiredSkills) {
			continue
		}
		if !found || caps.CurrentLoad < bestCaps.CurrentLoad {
			best, bestCaps, found = peer, caps, true
		}
	}
	return best, bestCaps, found
}

func hasAllSkills(have, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	for _, r := range required {
		if !set[r] {
			return false
		}
	}
	return true
}

// DelegateTask sends title/description to the best available peer
// satisfying requiredSkills/requiredAccessLevel, and returns the new task
// id on success.
func (e *Engine) DelegateTask(ctx context.Context, title, description, priority string, requiredSkills []string, requiredAccessLevel int, taskContext string) (string, error) {
	if e.keys.NodeID() == "" {
		return "", ErrNoIdentity
	}

	peer, _, ok := e.FindBestPeer(ctx, requiredSkills, requiredAccessLevel)
	if !ok {
		return "", ErrNoPeerAvailable
	}

	taskID := uuid.NewString()
	nodeID := e.keys.NodeID()
	signature, err := e.keys.Sign(submitCanonicalString(taskID, title, nodeID))
	if err != nil {
		return "", err
	}

	timeout := int(e.cfg.DefaultTimeout / time.Second)
	task := DelegatedTask{
		TaskID:              taskID,
		OriginNodeID:        nodeID,
		OriginHost:          e.cfg.SelfHost,
		OriginPort:          e.cfg.SelfPort,
		Title:               title,
		Description:         description,
		Priority:            priority,
		RequiredSkillIDs:    requiredSkills,
		RequiredAccessLevel: requiredAccessLevel,
		TimeoutSeconds:      timeout,
		Signature:           signature,
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
		Context:             taskContext,
	}

	var resp SubmitResponse
	err = withRetry(ctx, 3, time.Second, func() error {
		var submitErr error
		resp, submitErr = e.client.submitTask(ctx, peer.Host, peer.Port, task)
		return submitErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPeerRejected, err)
	}

	localTaskID := e.sink.CreateTask(title, description)
	e.sink.MarkDelegated(localTaskID)

	e.mu.Lock()
	e.outbound[taskID] = outboundEntry{
		TaskID:      taskID,
		TargetHost:  peer.Host,
		TargetPort:  peer.Port,
		Title:       title,
		SentAt:      time.Now().UTC(),
		Timeout:     timeout,
		LocalTaskID: localTaskID,
	}
	e.persistLocked()
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(ctx, "delegation.sent", map[string]string{
			"task_id": taskID,
			"peer":    peer.NodeID,
		}, "delegation")
	}

	_ = resp
	return taskID, nil
}

// HandleIncomingTask processes a DelegatedTask submitted by a peer and
// returns the accept/reject response to send back.
func (e *Engine) HandleIncomingTask(ctx context.Context, task DelegatedTask, senderIP string) (SubmitResponse, error) {
	if task.TaskID == "" || task.Title == "" || task.OriginNodeID == "" {
		return SubmitResponse{Status: "rejected", Reason: "missing fields"}, ErrMissingFields
	}

	pub, ok := e.keys.PeerPublicKey(task.OriginNodeID)
	if !ok {
		e.logger.Warn("delegation: unknown sender public key, rejecting", zap.String("origin_node_id", task.OriginNodeID))
		return SubmitResponse{Status: "rejected", Reason: "unknown sender"}, ErrUnknownSender
	}
	msg := submitCanonicalString(task.TaskID, task.Title, task.OriginNodeID)
	if !verifySignature(pub, msg, task.Signature) {
		e.logger.Warn("delegation: invalid signature on incoming task", zap.String("task_id", task.TaskID))
		return SubmitResponse{Status: "rejected", Reason: "invalid signature"}, ErrInvalidSignature
	}

	if task.RequiredAccessLevel > MaxAcceptedAccessLevel {
		return SubmitResponse{Status: "rejected", Reason: "required access level too high"}, ErrAccessLevelTooHigh
	}

	e.mu.Lock()
	if len(e.inbound) >= e.cfg.MaxConcurrentInbound {
		e.mu.Unlock()
		return SubmitResponse{Status: "rejected", Reason: "too many concurrent inbound delegations"}, ErrTooManyInbound
	}
	localSkillIDs := e.skillIDs
	e.mu.Unlock()

	if missing := missingSkills(task.RequiredSkillIDs, localSkillIDs); len(missing) > 0 {
		return SubmitResponse{Status: "rejected", Reason: "missing skills: " + strings.Join(missing, ", ")}, ErrMissingSkills
	}

	description := task.Description
	if task.Context != "" {
		description = description + "\n\n" + task.Context
	}
	localTaskID := e.sink.CreateTask(task.Title, description)

	e.mu.Lock()
	e.inbound[task.TaskID] = inboundEntry{
		TaskID:      task.TaskID,
		OriginHost:  task.OriginHost,
		OriginPort:  task.OriginPort,
		OriginNode:  task.OriginNodeID,
		ReceivedAt:  time.Now().UTC(),
		LocalTaskID: localTaskID,
	}
	e.persistLocked()
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(ctx, "delegation.received", map[string]string{
			"task_id":       task.TaskID,
			"origin":        task.OriginNodeID,
			"local_task_id": localTaskID,
		}, "delegation")
	}

	return SubmitResponse{Status: "accepted", TaskID: task.TaskID, LocalTaskID: localTaskID}, nil
}

func missingSkills(required, have []string) []string {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	var missing []string
	for _, r := range required {
		if !set[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

// DeliverResult signs and posts the result of a locally-tracked inbound
// delegation (identified by its local task id) back to its origin node,
// then removes the inbound entry.
func (e *Engine) DeliverResult(ctx context.Context, localTaskID, status, result, errText string, executionTime float64) error {
	e.mu.Lock()
	var taskID string
	var entry inboundEntry
	found := false
	for id, ib := range e.inbound {
		if ib.LocalTaskID == localTaskID {
			taskID, entry, found = id, ib, true
			break
		}
	}
	e.mu.Unlock()
	if !found {
		return ErrUnknownTask
	}

	nodeID := e.keys.NodeID()
	signature, err := e.keys.Sign(resultCanonicalString(taskID, status, nodeID))
	if err != nil {
		return err
	}

	payload := DelegatedTaskResult{
		TaskID:               taskID,
		ExecutorNodeID:       nodeID,
		Status:               status,
		Result:               result,
		Error:                errText,
		ExecutionTimeSeconds: executionTime,
		Signature:            signature,
		CompletedAt:          time.Now().UTC().Format(time.RFC3339),
	}

	err = withRetry(ctx, 3, time.Second, func() error {
		_, deliverErr := e.client.deliverResult(ctx, entry.OriginHost, entry.OriginPort, payload)
		return deliverErr
	})
	if err != nil {
		e.logger.Error("delegation: result delivery failed", zap.String("task_id", taskID), zap.Error(err))
		return fmt.Errorf("result delivery failed: %w", err)
	}

	e.mu.Lock()
	delete(e.inbound, taskID)
	e.persistLocked()
	e.mu.Unlock()
	return nil
}

// HandleTaskResult processes a DelegatedTaskResult received from the
// executor of a task this node delegated out.
func (e *Engine) HandleTaskResult(ctx context.Context, payload DelegatedTaskResult) error {
	e.mu.Lock()
	entry, ok := e.outbound[payload.TaskID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownTask
	}

	pub, ok := e.keys.PeerPublicKey(payload.ExecutorNodeID)
	if !ok {
		e.logger.Warn("delegation: unknown executor public key, rejecting", zap.String("executor_node_id", payload.ExecutorNodeID))
		return ErrUnknownSender
	}
	msg := resultCanonicalString(payload.TaskID, payload.Status, payload.ExecutorNodeID)
	if !verifySignature(pub, msg, payload.Signature) {
		e.logger.Warn("delegation: invalid signature on task result", zap.String("task_id", payload.TaskID))
		return ErrInvalidSignature
	}

	topic := "delegation.completed"
	if payload.Status == "completed" {
		e.sink.MarkCompleted(entry.LocalTaskID, payload.Result)
	} else {
		e.sink.MarkFailed(entry.LocalTaskID, payload.Error)
		topic = "delegation.failed"
	}

	e.mu.Lock()
	delete(e.outbound, payload.TaskID)
	e.persistLocked()
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(ctx, topic, map[string]string{
			"task_id": payload.TaskID,
		}, "delegation")
	}
	return nil
}

// RunWatchdog runs the timeout-sweep loop on cfg.WatchdogInterval until
// ctx is cancelled. Cancellation is idempotent: calling cancel twice, or
// letting ctx expire while a sweep is mid-flight, is safe.
func (e *Engine) RunWatchdog(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweepTimeouts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// OutboundTaskIDs returns the task ids currently tracked as outbound.
func (e *Engine) OutboundTaskIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.outbound))
	for id := range e.outbound {
		ids = append(ids, id)
	}
	return ids
}

// InboundLocalTaskIDs returns the local task ids currently tracked as
// inbound delegations awaiting a result.
func (e *Engine) InboundLocalTaskIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.inbound))
	for _, entry := range e.inbound {
		ids = append(ids, entry.LocalTaskID)
	}
	return ids
}

// OutboundLocalTaskID returns the local task id tracking taskID, if any.
func (e *Engine) OutboundLocalTaskID(taskID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.outbound[taskID]
	return entry.LocalTaskID, ok
}

func (e *Engine) sweepTimeouts(ctx context.Context) {
	now := time.Now().UTC()

	e.mu.Lock()
	var timedOut []outboundEntry
	for id, entry := range e.outbound {
		if now.Sub(entry.SentAt) > time.Duration(entry.Timeout)*time.Second {
			timedOut = append(timedOut, entry)
			delete(e.outbound, id)
		}
	}
	if len(timedOut) > 0 {
		e.persistLocked()
	}
	e.mu.Unlock()

	for _, entry := range timedOut {
		reason := fmt.Sprintf("Delegation timed out after %ds", entry.Timeout)
		e.sink.MarkFailed(entry.LocalTaskID, reason)
		if e.bus != nil {
			e.bus.Publish(ctx, "delegation.timeout", map[string]string{
				"task_id": entry.TaskID,
				"reason":  reason,
			}, "delegation")
		}
	}
}

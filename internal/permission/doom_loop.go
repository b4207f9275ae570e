package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DoomLoopThreshold is how many identical calls in a row trip detection.
const DoomLoopThreshold = 3

// doomLoopHistoryCap bounds per-session history growth.
const doomLoopHistoryCap = 10

// DoomLoopDetector notices a session replaying the same tool call with
// the same input over and over.
type DoomLoopDetector struct {
	mu      sync.RWMutex
	history map[string][]string // sessionID -> recent call hashes
}

// NewDoomLoopDetector creates an empty detector.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{
		history: make(map[string][]string),
	}
}

// Check records one call and reports whether it completes a run of
// DoomLoopThreshold identical calls.
func (d *DoomLoopDetector) Check(sessionID, toolName string, input any) bool {
	hash := hashToolCall(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.history[sessionID]
	looping := false
	if len(history) >= DoomLoopThreshold-1 {
		looping = true
		for _, prev := range history[len(history)-(DoomLoopThreshold-1):] {
			if prev != hash {
				looping = false
				break
			}
		}
	}

	history = append(history, hash)
	if len(history) > doomLoopHistoryCap {
		history = history[len(history)-doomLoopHistoryCap:]
	}
	d.history[sessionID] = history

	return looping
}

// hashToolCall digests the tool name plus its marshalled input.
func hashToolCall(toolName string, input any) string {
	data, _ := json.Marshal(map[string]any{
		"tool":  toolName,
		"input": input,
	})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Clear drops all history for a session.
func (d *DoomLoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

// Reset empties a session's history once a different call breaks the run.
func (d *DoomLoopDetector) Reset(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history[sessionID] = nil
}

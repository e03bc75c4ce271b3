package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/txsim/internal/ir"
)

// ErrScripted is the transient failure returned by ScriptedWork.
var ErrScripted = errors.New("scripted interruption")

// ScriptedWork fails chosen items a fixed number of times, then succeeds.
// Its Work method matches the engine's work function signature.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedWork struct {
	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
}

// NewScriptedWork creates a script where item id fails failures[id] times.
func NewScriptedWork(failures map[string]int) *ScriptedWork {
	f := make(map[string]int, len(failures))
	for id, n := range failures {
		f[id] = n
	}
	return &ScriptedWork{failures: f, attempts: make(map[string]int)}
}

// Work records the attempt and returns ErrScripted while failures remain.
func (s *ScriptedWork) Work(ctx context.Context, item ir.WorkItem, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[item.ID()]++
	if s.failures[item.ID()] > 0 {
		s.failures[item.ID()]--
		return ErrScripted
	}
	return nil
}

// Attempts returns how many times id was executed.
func (s *ScriptedWork) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

package voice

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omniassist/server/kv"
)

const (
	DefaultHistoryKey = "voiceCommands"
	maxRecentCommands = 100
)

// RecentCommand is one remembered command.
type RecentCommand struct {
	Command string    `json:"command"`
	UsedAt  time.Time `json:"usedAt"`
}

// History keeps recently used commands, deduplicated, newest first.
type History struct {
	store kv.Store
	key   string

	mu     sync.RWMutex
	recent []RecentCommand
}

func NewHistory(ctx context.Context, store kv.Store, key string) *History {
	if key == "" {
		key = DefaultHistoryKey
	}
	h := &History{store: store, key: key}
	h.recent = deduplicate(kv.Get(ctx, store, key, []RecentCommand{}))
	return h
}

// deduplicate keeps the latest use of each command, newest first.
func deduplicate(commands []RecentCommand) []RecentCommand {
	latest := make(map[string]RecentCommand)
	for _, c := range commands {
		if existing, ok := latest[c.Command]; !ok || c.UsedAt.After(existing.UsedAt) {
			latest[c.Command] = c
		}
	}

	result := make([]RecentCommand, 0, len(latest))
	for _, c := range latest {
		result = append(result, c)
	}
	sortNewestFirst(result)
	return result
}

func sortNewestFirst(commands []RecentCommand) {
	sort.SliceStable(commands, func(i, j int) bool {
		return commands[i].UsedAt.After(commands[j].UsedAt)
	})
}

func (h *History) List() []RecentCommand {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.recent)
}

// Record moves command to the front, trimming to the most recent 100.
func (h *History) Record(ctx context.Context, command string) {
	command = strings.Join(strings.Fields(command), " ")
	if command == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]RecentCommand, 0, len(h.recent)+1)
	next = append(next, RecentCommand{Command: command, UsedAt: time.Now()})
	for _, c := range h.recent {
		if c.Command != command {
			next = append(next, c)
		}
	}
	if len(next) > maxRecentCommands {
		next = next[:maxRecentCommands]
	}

	h.recent = next
	kv.Set(ctx, h.store, h.key, h.recent)
}

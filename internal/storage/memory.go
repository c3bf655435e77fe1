package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memNode struct {
	seq    int64
	parent string
	key    string
	value  json.RawMessage
}

type memoryStore struct {
	mu    sync.RWMutex
	seq   int64
	nodes map[string]memNode
}

func NewMemory() Store {
	return &memoryStore{nodes: make(map[string]memNode)}
}

func (s *memoryStore) Init(ctx context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) Append(ctx context.Context, path string, value any) (string, error) {
	parent := cleanPath(path)
	key := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.nodes[childPath(parent, key)] = memNode{
		seq:    s.seq,
		parent: parent,
		key:    key,
		value:  json.RawMessage(encodeJSON(value)),
	}
	return key, nil
}

func (s *memoryStore) Set(ctx context.Context, path string, value any) error {
	p := cleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(p, json.RawMessage(encodeJSON(value)))
	return nil
}

func (s *memoryStore) setLocked(p string, value json.RawMessage) {
	node, ok := s.nodes[p]
	if !ok {
		s.seq++
		node = memNode{seq: s.seq, parent: parentOf(p), key: keyOf(p)}
	}
	node.value = value
	s.nodes[p] = node
}

func (s *memoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	p := cleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(p, json.RawMessage(mergeFields(s.nodes[p].value, fields)))
	return nil
}

func (s *memoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[cleanPath(path)]
	if !ok {
		return nil, nil
	}
	return node.value, nil
}

func (s *memoryStore) GetLastN(ctx context.Context, path string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	p := cleanPath(path)
	s.mu.RLock()
	var children []memNode
	for _, node := range s.nodes {
		if node.parent == p {
			children = append(children, node)
		}
	}
	s.mu.RUnlock()
	sort.Slice(children, func(i, j int) bool { return children[i].seq < children[j].seq })
	if len(children) > n {
		children = children[len(children)-n:]
	}
	records := make([]Record, 0, len(children))
	for _, node := range children {
		records = append(records, Record{Key: node.key, Value: node.value})
	}
	return records, nil
}

func (s *memoryStore) Count(ctx context.Context, path string) (int64, error) {
	p := cleanPath(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, node := range s.nodes {
		if node.parent == p {
			count++
		}
	}
	return count, nil
}

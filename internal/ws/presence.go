package ws

import "sync"

// PresenceStore 记录每个用户当前唯一的在线连接。
// 所有实现都必须保证 Set 与 DeleteIf 的原子性，断线清理依赖这一点。
type PresenceStore interface {
	Get(userID uint) (*Client, bool)
	// Set 覆盖旧连接并返回被替换的连接（可能为 nil）。
	Set(userID uint, c *Client) *Client
	// DeleteIf 仅当记录仍指向 c 时删除，返回是否删除。
	DeleteIf(userID uint, c *Client) bool
	Len() int
}

// MemoryPresence 是单进程内的 PresenceStore，由一把读写锁保护。
type MemoryPresence struct {
	mu sync.RWMutex
	m  map[uint]*Client
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{m: make(map[uint]*Client)}
}

func (p *MemoryPresence) Get(userID uint) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.m[userID]
	return c, ok
}

func (p *MemoryPresence) Set(userID uint, c *Client) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.m[userID]
	p.m[userID] = c
	return prev
}

func (p *MemoryPresence) DeleteIf(userID uint, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.m[userID]; ok && cur == c {
		delete(p.m, userID)
		return true
	}
	return false
}

func (p *MemoryPresence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

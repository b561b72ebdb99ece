package motion

import "sync"

// CommandKind discriminates queued move commands.
type CommandKind int

const (
	// CommandMoveAbsolute targets an absolute position.
	CommandMoveAbsolute CommandKind = iota

	// CommandMoveRelative offsets from the current position.
	CommandMoveRelative
)

// PendingCommand is one queued move awaiting execution by the poll loop.
type PendingCommand struct {
	Axis  string
	Kind  CommandKind
	Value float64
}

// commandQueue is a FIFO of pending moves. Gantry links are too slow to
// execute every caller move inline, so callers enqueue and the poll loop
// drains in arrival order at the top of each cycle.
type commandQueue struct {
	mu    sync.Mutex
	items []PendingCommand
}

func (q *commandQueue) push(cmd PendingCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, cmd)
}

// drain removes and returns all queued commands in FIFO order.
func (q *commandQueue) drain() []PendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

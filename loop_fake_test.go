package nbws

import "time"

// fakeLoop is a no-op EventLoopAdapter recording the last call of each kind,
// standing in for poller.Epoll/poller.Loop in tests that never run a real
// event loop.
type fakeLoop struct {
	armedReadable int
	armedWritable int
	clearedWrite  int
	lastDeadline  time.Time
}

func (l *fakeLoop) ArmReadable(*Connection)               { l.armedReadable++ }
func (l *fakeLoop) ArmWritable(*Connection)               { l.armedWritable++ }
func (l *fakeLoop) ClearWritable(*Connection)             { l.clearedWrite++ }
func (l *fakeLoop) SetTimeout(_ *Connection, d time.Time) { l.lastDeadline = d }

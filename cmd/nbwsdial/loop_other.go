//go:build !linux

package main

import (
	"time"

	"github.com/coregx/nbws"
	"github.com/coregx/nbws/poller"
)

// fallbackLoop adapts poller.Loop, the portable per-connection-goroutine
// fallback, to eventLoop on platforms without epoll.
type fallbackLoop struct {
	l *poller.Loop
}

func newLoop() (eventLoop, error) {
	return &fallbackLoop{l: poller.NewLoop()}, nil
}

func (f *fallbackLoop) ArmReadable(c *nbws.Connection)             { f.l.ArmReadable(c) }
func (f *fallbackLoop) ArmWritable(c *nbws.Connection)             { f.l.ArmWritable(c) }
func (f *fallbackLoop) ClearWritable(c *nbws.Connection)           { f.l.ClearWritable(c) }
func (f *fallbackLoop) SetTimeout(c *nbws.Connection, d time.Time) { f.l.SetTimeout(c, d) }

func (f *fallbackLoop) register(c *nbws.Connection) error {
	f.l.Register(c)
	return nil
}

// pump is a no-op sleep: poller.Loop drives itself off one goroutine per
// connection, so the command's top-level loop only needs to yield and
// check its established/failed/deadline channels.
func (f *fallbackLoop) pump() error {
	time.Sleep(20 * time.Millisecond)
	return nil
}

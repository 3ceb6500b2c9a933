//go:build linux

package main

import (
	"time"

	"github.com/coregx/nbws"
	"github.com/coregx/nbws/poller"
)

// epollLoop adapts poller.Epoll to eventLoop.
type epollLoop struct {
	e *poller.Epoll
}

func newLoop() (eventLoop, error) {
	e, err := poller.NewEpoll()
	if err != nil {
		return nil, err
	}
	return &epollLoop{e: e}, nil
}

func (l *epollLoop) ArmReadable(c *nbws.Connection)             { l.e.ArmReadable(c) }
func (l *epollLoop) ArmWritable(c *nbws.Connection)             { l.e.ArmWritable(c) }
func (l *epollLoop) ClearWritable(c *nbws.Connection)           { l.e.ClearWritable(c) }
func (l *epollLoop) SetTimeout(c *nbws.Connection, d time.Time) { l.e.SetTimeout(c, d) }

func (l *epollLoop) register(c *nbws.Connection) error { return l.e.Register(c) }

// pump blocks up to one second waiting for readiness so the command's
// top-level loop doesn't busy-spin while still noticing its own deadline
// promptly.
func (l *epollLoop) pump() error { return l.e.Wait(1000) }

package main

import "github.com/coregx/nbws"

// eventLoop is nbws.EventLoopAdapter plus the registration and
// pumping operations this command needs, letting newLoop pick poller.Epoll
// on Linux and fall back to poller.Loop elsewhere without the caller caring
// which.
type eventLoop interface {
	nbws.EventLoopAdapter

	register(c *nbws.Connection) error
	pump() error
}

//go:build linux

package board

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// L2CAPDialer 通过 BlueZ 内核 socket 打开 L2CAP 通道
type L2CAPDialer struct{}

// Dial 建立 SOCK_SEQPACKET L2CAP 连接
func (L2CAPDialer) Dial(ctx context.Context, address string, psm uint16) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, err := parseBDAddr(address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("l2cap: failed to create socket: %w", err)
	}

	// SockaddrL2.Addr 按显示顺序给出，x/sys 内部会转成小端
	if err := unix.Connect(fd, &unix.SockaddrL2{PSM: psm, Addr: addr}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("l2cap: failed to connect %s psm 0x%02x: %w", address, psm, err)
	}

	return &l2capChannel{fd: fd}, nil
}

type l2capChannel struct {
	mu       sync.Mutex
	fd       int
	deadline time.Time
	closed   bool
}

func (c *l2capChannel) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *l2capChannel) Read(buf []byte) (int, error) {
	c.mu.Lock()
	fd, deadline, closed := c.fd, c.deadline, c.closed
	c.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}

	if !deadline.IsZero() {
		timeoutMs := int(time.Until(deadline).Milliseconds())
		if timeoutMs <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				return 0, os.ErrDeadlineExceeded
			}
			return 0, fmt.Errorf("l2cap: poll: %w", err)
		}
		if n == 0 {
			return 0, os.ErrDeadlineExceeded
		}
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, fmt.Errorf("l2cap: read: %w", err)
	}
	return n, nil
}

func (c *l2capChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	fd, closed := c.fd, c.closed
	c.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}
	n, err := unix.Write(fd, p)
	if err != nil {
		return n, fmt.Errorf("l2cap: write: %w", err)
	}
	return n, nil
}

func (c *l2capChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

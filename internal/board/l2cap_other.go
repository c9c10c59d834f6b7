//go:build !linux

package board

import (
	"context"
	"errors"
)

var errL2CAPNotSupported = errors.New("l2cap: not supported on this platform")

// L2CAPDialer 非 Linux 平台的占位实现
type L2CAPDialer struct{}

// Dial 总是失败
func (L2CAPDialer) Dial(ctx context.Context, address string, psm uint16) (Channel, error) {
	return nil, errL2CAPNotSupported
}

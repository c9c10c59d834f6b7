package board

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Channel 一条到平衡板的字节通道（数据通道或控制通道）
// 读超时返回 os.ErrDeadlineExceeded，语义与 net.Conn 一致
type Channel interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Dialer 打开到指定地址、指定 PSM 的通道
type Dialer interface {
	Dial(ctx context.Context, address string, psm uint16) (Channel, error)
}

// parseBDAddr 解析 "00:1E:35:AA:BB:CC" 形式的蓝牙地址（显示顺序）
func parseBDAddr(address string) ([6]uint8, error) {
	var addr [6]uint8
	parts := strings.Split(address, ":")
	if len(parts) != len(addr) {
		return addr, fmt.Errorf("invalid bluetooth address %q", address)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) != 2 {
			return addr, fmt.Errorf("invalid bluetooth address %q", address)
		}
		addr[i] = uint8(v)
	}
	return addr, nil
}

package board

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// BlueZ D-Bus 常量
const (
	bluezService        = "org.bluez"
	bluezAdapterIface   = "org.bluez.Adapter1"
	bluezDeviceIface    = "org.bluez.Device1"
	objectManagerMethod = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

// DefaultBoardName 平衡板广播的设备名
const DefaultBoardName = "Nintendo RVL-WBC-01"

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Discoverer 通过 BlueZ 扫描附近的平衡板
type Discoverer struct {
	adapter  string
	name     string
	duration time.Duration
	logger   *zap.Logger
}

// NewDiscoverer 创建扫描器，adapter 如 "hci0"
func NewDiscoverer(adapter, name string, duration time.Duration, logger *zap.Logger) *Discoverer {
	if adapter == "" {
		adapter = "hci0"
	}
	if name == "" {
		name = DefaultBoardName
	}
	return &Discoverer{
		adapter:  adapter,
		name:     name,
		duration: duration,
		logger:   logger,
	}
}

// Discover 扫描固定时长，返回第一个名称匹配的设备地址
// 只做查询，不改变平衡板状态
func (d *Discoverer) Discover(ctx context.Context) (string, bool, error) {
	d.logger.Info("Press the red sync button on the board now",
		zap.String("adapter", d.adapter),
		zap.Duration("duration", d.duration),
	)

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return "", false, fmt.Errorf("%w: system bus: %v", ErrConnection, err)
	}
	defer conn.Close()

	adapter := conn.Object(bluezService, dbus.ObjectPath("/org/bluez/"+d.adapter))
	if call := adapter.CallWithContext(ctx, bluezAdapterIface+".StartDiscovery", 0); call.Err != nil {
		return "", false, fmt.Errorf("%w: start discovery: %v", ErrConnection, call.Err)
	}
	defer func() {
		if call := adapter.Call(bluezAdapterIface+".StopDiscovery", 0); call.Err != nil {
			d.logger.Debug("Failed to stop discovery", zap.Error(call.Err))
		}
	}()

	timer := time.NewTimer(d.duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-timer.C:
	}

	var objects managedObjects
	root := conn.Object(bluezService, dbus.ObjectPath("/"))
	if err := root.CallWithContext(ctx, objectManagerMethod, 0).Store(&objects); err != nil {
		return "", false, fmt.Errorf("%w: list devices: %v", ErrConnection, err)
	}

	address, found := matchDevice(objects, d.name)
	if found {
		d.logger.Info("Found balance board", zap.String("address", address))
	} else {
		d.logger.Info("No balance boards discovered")
	}
	return address, found, nil
}

// matchDevice 按对象路径排序后返回第一个名称匹配的设备地址
func matchDevice(objects managedObjects, name string) (string, bool) {
	paths := make([]string, 0, len(objects))
	for p := range objects {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)

	for _, p := range paths {
		props, ok := objects[dbus.ObjectPath(p)][bluezDeviceIface]
		if !ok {
			continue
		}
		if variantString(props["Name"]) != name && variantString(props["Alias"]) != name {
			continue
		}
		if addr := variantString(props["Address"]); addr != "" {
			return addr, true
		}
	}
	return "", false
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

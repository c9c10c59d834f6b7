package resetline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultSysfsRoot sysfs GPIO 目录
const DefaultSysfsRoot = "/sys/class/gpio"

// Line 平衡板电源复位线：拉低一段时间后释放
type Line struct {
	root     string
	pin      int
	duration time.Duration
	logger   *zap.Logger
}

// New 创建复位线，root 为空时使用 /sys/class/gpio
func New(root string, pin int, duration time.Duration, logger *zap.Logger) *Line {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Line{
		root:     root,
		pin:      pin,
		duration: duration,
		logger:   logger,
	}
}

// Pulse 导出引脚、输出低电平、保持 duration、释放引脚
// 必须在扫描和连接之前完成
func (l *Line) Pulse(ctx context.Context) error {
	pin := strconv.Itoa(l.pin)
	pinDir := filepath.Join(l.root, "gpio"+pin)

	if err := writeFile(filepath.Join(l.root, "export"), pin); err != nil && !errors.Is(err, syscall.EBUSY) {
		return fmt.Errorf("failed to export gpio %d: %w", l.pin, err)
	}
	defer func() {
		if err := writeFile(filepath.Join(l.root, "unexport"), pin); err != nil {
			l.logger.Debug("Failed to unexport gpio", zap.Int("pin", l.pin), zap.Error(err))
		}
	}()

	if err := writeFile(filepath.Join(pinDir, "direction"), "out"); err != nil {
		return fmt.Errorf("failed to set gpio %d direction: %w", l.pin, err)
	}
	if err := writeFile(filepath.Join(pinDir, "value"), "0"); err != nil {
		return fmt.Errorf("failed to drive gpio %d low: %w", l.pin, err)
	}

	l.logger.Info("Reset line pulled low", zap.Int("pin", l.pin), zap.Duration("duration", l.duration))

	timer := time.NewTimer(l.duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return nil
}

func writeFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

package board

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"wisefido-scale/internal/models"

	"go.uber.org/zap"
)

// State 连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// EventSink 接收校准后的称重事件；Done 返回 true 时接收循环退出
type EventSink interface {
	HandleEvent(ev models.BoardEvent)
	Done() bool
}

// Options 平衡板连接参数
type Options struct {
	// PollInterval 每次读取的最长等待时间，也是断开请求的最大响应延迟
	PollInterval time.Duration
	// DisconnectTimeout 断开时等待接收循环退出的上限
	DisconnectTimeout time.Duration
}

const (
	defaultPollInterval      = 100 * time.Millisecond
	defaultDisconnectTimeout = 2 * time.Second
)

// Board 平衡板协议解码器，负责连接生命周期、命令编码和帧分发
type Board struct {
	dialer Dialer
	logger *zap.Logger
	opts   Options

	mu       sync.Mutex
	state    State
	address  string
	data     Channel
	control  Channel
	light    bool
	stop     chan struct{} // Disconnect 关闭
	loopDone chan struct{} // Receive 运行期间非 nil

	// 只由 Connect 和接收循环写入，写入时持有 mu；循环内读取不加锁
	calibration *CalibrationTable
	lastEvent   models.BoardEvent

	// 以下字段只在 Connect 和接收循环中访问
	calibrationRequested bool
	buttonDown           bool
	lastPressed          bool
}

// NewBoard 创建平衡板实例（初始为 Disconnected）
func NewBoard(dialer Dialer, opts Options, logger *zap.Logger) *Board {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = defaultDisconnectTimeout
	}
	return &Board{
		dialer:      dialer,
		logger:      logger,
		opts:        opts,
		state:       StateDisconnected,
		calibration: NewCalibrationTable(),
	}
}

// State 当前连接状态
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsConnected 是否已连接
func (b *Board) IsConnected() bool {
	return b.State() == StateConnected
}

// Address 当前连接的设备地址
func (b *Board) Address() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.address
}

// Light 指示灯最后一次设置的状态
func (b *Board) Light() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.light
}

// Calibration 当前校准表的快照
func (b *Board) Calibration() *CalibrationTable {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := *b.calibration
	return &snapshot
}

// LastEvent 最近一次成功解码的事件
func (b *Board) LastEvent() models.BoardEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastEvent
}

// Connect 打开数据通道和控制通道，成功后请求校准并开启扩展上报
func (b *Board) Connect(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty address", ErrConnection)
	}

	b.mu.Lock()
	if b.state != StateDisconnected {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("%w: board is %s", ErrConnection, state)
	}
	b.state = StateConnecting
	b.mu.Unlock()

	data, err := b.dialer.Dial(ctx, address, PSMData)
	if err != nil {
		b.setState(StateDisconnected)
		return fmt.Errorf("%w: data channel: %v", ErrConnection, err)
	}
	control, err := b.dialer.Dial(ctx, address, PSMControl)
	if err != nil {
		closeQuietly(data)
		b.setState(StateDisconnected)
		return fmt.Errorf("%w: control channel: %v", ErrConnection, err)
	}

	b.mu.Lock()
	b.data = data
	b.control = control
	b.address = address
	b.stop = make(chan struct{})
	b.state = StateConnected
	// 重连后必须重新校准
	b.calibration.Reset()
	b.lastEvent = models.BoardEvent{}
	b.mu.Unlock()

	b.calibrationRequested = false
	b.buttonDown = false
	b.lastPressed = false

	b.logger.Info("Connected to balance board", zap.String("address", address))

	if _, err := b.Calibrate(); err != nil {
		b.dropLink()
		return err
	}
	if _, err := b.Send(ExtensionCommand()); err != nil {
		b.dropLink()
		return err
	}
	if _, err := b.SetReportingType(); err != nil {
		b.dropLink()
		return err
	}
	return nil
}

// Disconnect 请求接收循环退出并关闭两个通道
// 关闭通道的错误只记录不返回
func (b *Board) Disconnect(ctx context.Context) {
	b.mu.Lock()
	if b.state == StateConnected {
		b.state = StateDisconnecting
		close(b.stop)
	}
	done := b.loopDone
	b.mu.Unlock()

	if done != nil {
		timer := time.NewTimer(b.opts.DisconnectTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Warn("Disconnect wait cancelled", zap.Error(ctx.Err()))
		case <-timer.C:
			b.logger.Warn("Receive loop did not stop in time",
				zap.Duration("timeout", b.opts.DisconnectTimeout))
		}
	}

	b.dropLink()
	b.logger.Info("Balance board disconnected")
}

// Send 通过控制通道发送命令
// 未连接时不发送，返回 SendResultNotConnected 且 err 为 nil
func (b *Board) Send(cmd []byte) (models.SendResult, error) {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return models.SendResultNotConnected, nil
	}
	control := b.control
	b.mu.Unlock()

	if len(cmd) < 2 || cmd[0] != reportID {
		return models.SendResultSent, fmt.Errorf("%w: malformed command % x", ErrConnection, cmd)
	}
	if _, err := control.Write(cmd); err != nil {
		return models.SendResultSent, fmt.Errorf("%w: send command 0x%02x: %v", ErrConnection, cmd[1], err)
	}
	return models.SendResultSent, nil
}

// SetLight 开关电源键指示灯
func (b *Board) SetLight(on bool) (models.SendResult, error) {
	res, err := b.Send(LightCommand(on))
	if err == nil && res == models.SendResultSent {
		b.mu.Lock()
		b.light = on
		b.mu.Unlock()
	}
	return res, err
}

// Calibrate 请求读取校准数据
func (b *Board) Calibrate() (models.SendResult, error) {
	res, err := b.Send(CalibrationRequestCommand())
	if err == nil && res == models.SendResultSent {
		b.calibrationRequested = true
	}
	return res, err
}

// SetReportingType 设置持续上报扩展 8 字节数据
func (b *Board) SetReportingType() (models.SendResult, error) {
	return b.Send(ReportingCommand())
}

// Receive 逐帧读取并分发，直到 sink.Done()、断开请求、ctx 取消或链路错误
// 断开请求在每次循环开始时检查，单帧解码过程不可中断
func (b *Board) Receive(ctx context.Context, sink EventSink) error {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	if b.loopDone != nil {
		b.mu.Unlock()
		return errors.New("board: receive loop already running")
	}
	done := make(chan struct{})
	b.loopDone = done
	data, stop := b.data, b.stop
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.state == StateDisconnecting {
			b.state = StateDisconnected
		}
		b.loopDone = nil
		b.mu.Unlock()
		close(done)
	}()

	buf := make([]byte, maxFrameSize)
	for !sink.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := data.SetReadDeadline(time.Now().Add(b.opts.PollInterval)); err != nil {
			b.dropLink()
			return fmt.Errorf("%w: set read deadline: %v", ErrConnection, err)
		}
		n, err := data.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			select {
			case <-stop:
				// 断开过程中通道被关闭
				return nil
			default:
			}
			b.dropLink()
			return fmt.Errorf("%w: read: %v", ErrConnection, err)
		}

		if err := b.dispatch(buf[:n], sink); err != nil {
			b.logger.Debug("Dropping frame", zap.Binary("frame", buf[:n]), zap.Error(err))
		}
	}
	return nil
}

// dispatch 按帧类型处理
func (b *Board) dispatch(frame []byte, sink EventSink) error {
	kind, err := frameType(frame)
	if err != nil {
		return err
	}

	switch kind {
	case InputStatus:
		// 设备自身复位后会上报状态，需要重新设置上报模式
		_, err := b.SetReportingType()
		return err
	case InputReadData:
		if !b.calibrationRequested {
			return nil
		}
		payload, err := parseReadData(frame)
		if err != nil {
			return err
		}
		return b.handleCalibration(payload)
	case InputExtension8Bytes:
		return b.handleSensorFrame(frame, sink)
	default:
		b.logger.Debug("ACK to data write received", zap.Uint8("type", kind))
		return nil
	}
}

// handleCalibration 校准表的写入都在 mu 下进行，Send 会再次加锁，所以 recalibrate 放在解锁之后
func (b *Board) handleCalibration(payload []byte) error {
	b.mu.Lock()
	var err error
	complete := false
	if len(payload) == lowAnchorsPayloadLen {
		err = b.calibration.SetLowAnchors(payload)
	} else {
		err = b.calibration.SetHighAnchors(payload)
		complete = err == nil
	}
	if err != nil {
		b.calibration.Invalidate()
	}
	b.mu.Unlock()

	if complete {
		b.calibrationRequested = false
		b.logger.Info("Calibration complete")
	}
	if err != nil {
		b.logger.Warn("Incomplete calibration data, requesting recalibration", zap.Error(err))
		b.recalibrate()
	}
	return err
}

func (b *Board) handleSensorFrame(frame []byte, sink EventSink) error {
	sf, err := parseSensorFrame(frame, b.lastPressed)
	if err != nil {
		return err
	}
	b.lastPressed = sf.ButtonPressed
	if sf.ButtonPressed && !b.buttonDown {
		b.buttonDown = true
		b.logger.Debug("Button pressed")
	}
	if sf.ButtonReleased {
		b.buttonDown = false
		b.logger.Debug("Button released")
	}

	ev, err := toBoardEvent(sf, b.calibration)
	if err != nil {
		if b.calibration.Complete() {
			// 校准数据本身有问题
			b.logger.Warn("Invalid calibration data, requesting recalibration", zap.Error(err))
			b.mu.Lock()
			b.calibration.Invalidate()
			b.mu.Unlock()
			b.recalibrate()
		}
		return err
	}

	b.mu.Lock()
	b.lastEvent = ev
	b.mu.Unlock()
	sink.HandleEvent(ev)
	return nil
}

func (b *Board) recalibrate() {
	if _, err := b.Calibrate(); err != nil {
		b.logger.Error("Failed to request calibration", zap.Error(err))
	}
}

func (b *Board) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// dropLink 置为 Disconnected 并关闭通道（尽力而为）
func (b *Board) dropLink() {
	b.mu.Lock()
	b.state = StateDisconnected
	data, control := b.data, b.control
	b.data, b.control = nil, nil
	b.light = false
	b.mu.Unlock()

	closeQuietly(data)
	closeQuietly(control)
}

func closeQuietly(c Channel) {
	if c != nil {
		_ = c.Close()
	}
}

package board

import "errors"

// 平衡板相关错误
var (
	// ErrConnection 通道打开/连接失败或链路中断，调用方应重新发现设备
	ErrConnection = errors.New("board: connection error")
	// ErrCalibration 校准数据缺失或异常，重新校准前拒绝换算重量
	ErrCalibration = errors.New("board: calibration error")
	// ErrDecode 帧长度不足或格式不对，丢弃该帧后继续
	ErrDecode = errors.New("board: decode error")
	// ErrNotConnected 在未连接状态下调用需要连接的操作
	ErrNotConnected = errors.New("board: not connected")
)

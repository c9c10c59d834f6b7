package board

import (
	"encoding/binary"
	"fmt"

	"wisefido-scale/internal/models"
)

// 输出报告（主机 -> 平衡板）
const (
	reportID byte = 0x52

	CommandLight         byte = 0x11
	CommandReporting     byte = 0x12
	CommandRequestStatus byte = 0x15
	CommandWriteRegister byte = 0x16
	CommandReadRegister  byte = 0x17

	continuousReporting byte = 0x04
	lightOn             byte = 0x10
	lightOff            byte = 0x00
)

// 输入报告（平衡板 -> 主机），类型码位于帧的第 2 个字节
const (
	InputStatus          byte = 0x20
	InputReadData        byte = 0x21
	InputExtension8Bytes byte = 0x32

	frameTypeOffset = 1
	maxFrameSize    = 25

	buttonDownMask uint16 = 0x0008
)

// L2CAP 通道
const (
	PSMControl uint16 = 0x11
	PSMData    uint16 = 0x13
)

// 读数据帧：第 5 字节高 4 位 + 1 为有效负载长度，负载从第 8 字节开始
const (
	readDataSizeOffset    = 4
	readDataPayloadOffset = 7
)

// 扩展 8 字节帧：2 字节按键状态 + 4 个 16 位大端原始读数
const (
	sensorButtonsOffset = 2
	sensorMassOffset    = 4
	sensorFrameLen      = sensorMassOffset + models.SensorCount*2
)

// encodeCommand 组装输出报告：固定 report id + 命令码 + 参数
func encodeCommand(code byte, args ...byte) []byte {
	out := make([]byte, 0, 2+len(args))
	out = append(out, reportID, code)
	return append(out, args...)
}

// LightCommand 电源键指示灯开关
func LightCommand(on bool) []byte {
	if on {
		return encodeCommand(CommandLight, lightOn)
	}
	return encodeCommand(CommandLight, lightOff)
}

// ReportingCommand 持续上报 + 扩展 8 字节模式
func ReportingCommand() []byte {
	return encodeCommand(CommandReporting, continuousReporting, InputExtension8Bytes)
}

// CalibrationRequestCommand 读取扩展寄存器中的 24 字节校准数据
func CalibrationRequestCommand() []byte {
	return encodeCommand(CommandReadRegister, 0x04, 0xA4, 0x00, 0x24, 0x00, 0x18)
}

// ExtensionCommand 注册扩展（写扩展寄存器）
func ExtensionCommand() []byte {
	return encodeCommand(CommandWriteRegister, 0x04, 0xA4, 0x00, 0x40, 0x00)
}

// StatusRequestCommand 请求状态报告
func StatusRequestCommand() []byte {
	return encodeCommand(CommandRequestStatus, 0x00)
}

// frameType 读取帧类型码
func frameType(frame []byte) (byte, error) {
	if len(frame) <= frameTypeOffset {
		return 0, fmt.Errorf("%w: frame too short (%d bytes)", ErrDecode, len(frame))
	}
	return frame[frameTypeOffset], nil
}

// parseReadData 取出读数据帧中的校准子包
func parseReadData(frame []byte) ([]byte, error) {
	if len(frame) <= readDataSizeOffset {
		return nil, fmt.Errorf("%w: read data frame too short (%d bytes)", ErrDecode, len(frame))
	}
	size := int(frame[readDataSizeOffset]>>4) + 1
	end := readDataPayloadOffset + size
	if len(frame) < end {
		return nil, fmt.Errorf("%w: read data frame has %d bytes, payload needs %d",
			ErrDecode, len(frame), end)
	}
	return frame[readDataPayloadOffset:end], nil
}

// parseSensorFrame 解码扩展 8 字节帧
// prevPressed 为上一事件的按键状态，用于识别松开
func parseSensorFrame(frame []byte, prevPressed bool) (models.SensorFrame, error) {
	var sf models.SensorFrame
	if len(frame) < sensorFrameLen {
		return sf, fmt.Errorf("%w: sensor frame has %d bytes, want %d", ErrDecode, len(frame), sensorFrameLen)
	}

	state := binary.BigEndian.Uint16(frame[sensorButtonsOffset : sensorButtonsOffset+2])
	sf.ButtonPressed = state == buttonDownMask
	sf.ButtonReleased = !sf.ButtonPressed && prevPressed

	// 原始顺序：右上、右下、左上、左下（与 SensorPosition 一致）
	for pos := 0; pos < models.SensorCount; pos++ {
		off := sensorMassOffset + pos*2
		sf.Raw[pos] = binary.BigEndian.Uint16(frame[off : off+2])
	}
	return sf, nil
}

// toBoardEvent 用校准表把原始帧换算为事件
func toBoardEvent(sf models.SensorFrame, table *CalibrationTable) (models.BoardEvent, error) {
	var mass [models.SensorCount]float64
	for pos := 0; pos < models.SensorCount; pos++ {
		kg, err := table.Convert(sf.Raw[pos], models.SensorPosition(pos))
		if err != nil {
			return models.BoardEvent{}, err
		}
		mass[pos] = kg
	}
	return models.NewBoardEvent(
		mass[models.TopLeft],
		mass[models.TopRight],
		mass[models.BottomLeft],
		mass[models.BottomRight],
		sf.ButtonPressed,
		sf.ButtonReleased,
	), nil
}

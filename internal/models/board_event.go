package models

// SensorPosition 平衡板四个称重传感器的位置
// 顺序与设备上报的原始数据顺序一致
type SensorPosition int

const (
	TopRight SensorPosition = iota
	BottomRight
	TopLeft
	BottomLeft
)

// SensorCount 传感器数量
const SensorCount = 4

// String 返回位置名称（日志用）
func (p SensorPosition) String() string {
	switch p {
	case TopRight:
		return "top_right"
	case BottomRight:
		return "bottom_right"
	case TopLeft:
		return "top_left"
	case BottomLeft:
		return "bottom_left"
	default:
		return "unknown"
	}
}

// SensorFrame 解码后的一帧原始传感器数据（转换为 BoardEvent 前的中间态）
type SensorFrame struct {
	Raw            [SensorCount]uint16 // 按 SensorPosition 索引
	ButtonPressed  bool
	ButtonReleased bool
}

// BoardEvent 一次校准后的称重事件，构造后不再修改
type BoardEvent struct {
	TopLeft        float64 `json:"top_left"`
	TopRight       float64 `json:"top_right"`
	BottomLeft     float64 `json:"bottom_left"`
	BottomRight    float64 `json:"bottom_right"`
	ButtonPressed  bool    `json:"button_pressed"`
	ButtonReleased bool    `json:"button_released"`
	TotalWeight    float64 `json:"total_weight"`
}

// NewBoardEvent 创建称重事件，TotalWeight 为四个传感器之和
func NewBoardEvent(topLeft, topRight, bottomLeft, bottomRight float64, pressed, released bool) BoardEvent {
	return BoardEvent{
		TopLeft:        topLeft,
		TopRight:       topRight,
		BottomLeft:     bottomLeft,
		BottomRight:    bottomRight,
		ButtonPressed:  pressed,
		ButtonReleased: released,
		TotalWeight:    topLeft + topRight + bottomLeft + bottomRight,
	}
}

// SendResult 发送命令的结果
// 未连接时发送是静默跳过而不是错误，调用方可据此判断
type SendResult int

const (
	SendResultSent SendResult = iota
	SendResultNotConnected
)

func (r SendResult) String() string {
	if r == SendResultSent {
		return "sent"
	}
	return "not_connected"
}

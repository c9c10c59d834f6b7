package board

import (
	"encoding/binary"
	"fmt"

	"wisefido-scale/internal/models"
)

// 三个校准锚点对应的重量（kg）
const (
	anchorStepKg = 17.0

	anchorZero = 0 // 0 kg
	anchorMid  = 1 // 17 kg
	anchorHigh = 2 // 34 kg

	// 未校准时的占位值，足够大使任何读数都落在 0 kg 以下
	uncalibratedCell uint16 = 10000

	lowAnchorsPayloadLen  = 16
	highAnchorsPayloadLen = 8
)

type calibrationState int

const (
	calibrationPending calibrationState = iota // 未收到任何校准包
	calibrationPartial                         // 已收到 0/17 kg 锚点
	calibrationComplete
	calibrationInvalid // 数据异常，等待重新校准
)

// CalibrationTable 每个传感器的三点校准表（0/17/34 kg）
// 一次连接只在校准握手时写入，之后只读
type CalibrationTable struct {
	cells [3][models.SensorCount]uint16
	state calibrationState
}

// NewCalibrationTable 创建未校准的表
func NewCalibrationTable() *CalibrationTable {
	t := &CalibrationTable{}
	t.Reset()
	return t
}

// Reset 恢复为未校准状态（每次重连都要调用）
func (t *CalibrationTable) Reset() {
	for i := range t.cells {
		for j := range t.cells[i] {
			t.cells[i][j] = uncalibratedCell
		}
	}
	t.state = calibrationPending
}

// SetLowAnchors 写入 0 kg 和 17 kg 两行（16 字节，大端）
func (t *CalibrationTable) SetLowAnchors(payload []byte) error {
	if len(payload) != lowAnchorsPayloadLen {
		return fmt.Errorf("%w: low anchors payload is %d bytes, want %d",
			ErrCalibration, len(payload), lowAnchorsPayloadLen)
	}
	index := 0
	for row := anchorZero; row <= anchorMid; row++ {
		for pos := 0; pos < models.SensorCount; pos++ {
			t.cells[row][pos] = binary.BigEndian.Uint16(payload[index : index+2])
			index += 2
		}
	}
	t.state = calibrationPartial
	return nil
}

// SetHighAnchors 写入 34 kg 一行，收到后校准完成
// 必须先收到 0/17 kg 锚点，否则返回 ErrCalibration
func (t *CalibrationTable) SetHighAnchors(payload []byte) error {
	if len(payload) < highAnchorsPayloadLen {
		return fmt.Errorf("%w: high anchors payload is %d bytes, want %d",
			ErrCalibration, len(payload), highAnchorsPayloadLen)
	}
	if t.state != calibrationPartial {
		return fmt.Errorf("%w: high anchors received before low anchors", ErrCalibration)
	}
	for pos := 0; pos < models.SensorCount; pos++ {
		t.cells[anchorHigh][pos] = binary.BigEndian.Uint16(payload[pos*2 : pos*2+2])
	}
	t.state = calibrationComplete
	return nil
}

// Complete 校准是否完成且有效
func (t *CalibrationTable) Complete() bool {
	return t.state == calibrationComplete
}

// Invalidate 标记校准失效，直到重新校准
func (t *CalibrationTable) Invalidate() {
	t.state = calibrationInvalid
}

// Cell 返回某一锚点某个位置的原始值
func (t *CalibrationTable) Cell(anchor int, pos models.SensorPosition) uint16 {
	return t.cells[anchor][pos]
}

// Convert 把原始读数换算为 kg
//
// raw 恰好等于 17 kg 锚点时既不走插值也不走外推，结果为 0。
// 这是设备侧历史行为，保持不变。
func (t *CalibrationTable) Convert(raw uint16, pos models.SensorPosition) (float64, error) {
	if !t.Complete() {
		return 0, fmt.Errorf("%w: table not calibrated", ErrCalibration)
	}
	if pos < 0 || int(pos) >= models.SensorCount {
		return 0, fmt.Errorf("%w: unknown sensor position %d", ErrCalibration, pos)
	}

	t0 := int(t.cells[anchorZero][pos])
	t1 := int(t.cells[anchorMid][pos])
	t2 := int(t.cells[anchorHigh][pos])
	r := int(raw)

	switch {
	case r < t0:
		return 0, nil
	case r < t1:
		span := t1 - t0
		if span == 0 {
			return 0, fmt.Errorf("%w: zero span between 0kg and 17kg anchors at %s", ErrCalibration, pos)
		}
		return anchorStepKg * float64(r-t0) / float64(span), nil
	case r > t1:
		span := t2 - t1
		if span == 0 {
			return 0, fmt.Errorf("%w: zero span between 17kg and 34kg anchors at %s", ErrCalibration, pos)
		}
		return anchorStepKg + anchorStepKg*float64(r-t1)/float64(span), nil
	default:
		return 0, nil
	}
}

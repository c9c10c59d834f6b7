package service

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wisefido-scale/internal/board"
	commonconfig "wisefido-scale/internal/common/config"
	"wisefido-scale/internal/common/database"
	"wisefido-scale/internal/config"
	"wisefido-scale/internal/models"
	"wisefido-scale/internal/processor"
	"wisefido-scale/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeChannel 依次返回预置帧，读空后超时
type fakeChannel struct {
	mu      sync.Mutex
	frames  [][]byte
	written [][]byte
	closed  bool
}

func (c *fakeChannel) Read(buf []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, os.ErrClosed
	}
	if len(c.frames) == 0 {
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, os.ErrDeadlineExceeded
	}
	frame := c.frames[0]
	c.frames = c.frames[1:]
	c.mu.Unlock()
	return copy(buf, frame), nil
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) SetReadDeadline(time.Time) error { return nil }

func (c *fakeChannel) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

type fakeDialer struct {
	data, control *fakeChannel
	dials         int
}

func (d *fakeDialer) Dial(_ context.Context, _ string, psm uint16) (board.Channel, error) {
	d.dials++
	if psm == board.PSMControl {
		return d.control, nil
	}
	return d.data, nil
}

type fakeFinder struct {
	address string
	found   bool
	calls   int
}

func (f *fakeFinder) Discover(context.Context) (string, bool, error) {
	f.calls++
	return f.address, f.found, nil
}

type fakeReset struct {
	pulses int
	err    error
}

func (r *fakeReset) Pulse(context.Context) error {
	r.pulses++
	return r.err
}

type fakeDisplay struct {
	mu      sync.Mutex
	texts   []string
	cleared int
}

func (d *fakeDisplay) Render(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return nil
}

func (d *fakeDisplay) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared++
	return nil
}

func (d *fakeDisplay) Texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) LogWeight(ctx context.Context, user string, weightKg float64) error {
	return m.Called(ctx, user, weightKg).Error(0)
}

func readDataFrame(payload []byte) []byte {
	frame := []byte{0xA1, board.InputReadData, 0x00, 0x00, byte(len(payload)-1) << 4, 0x00, 0x24}
	return append(frame, payload...)
}

func be16(values ...uint16) []byte {
	var out []byte
	for _, v := range values {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out
}

// calibration 锚点 1000 / 2700 / 4400，每个传感器读数 2750 对应 17.5 kg
func calibrationFrames() [][]byte {
	return [][]byte{
		readDataFrame(be16(1000, 1000, 1000, 1000, 2700, 2700, 2700, 2700)),
		readDataFrame(be16(4400, 4400, 4400, 4400)),
	}
}

func sensorFrame(raw uint16) []byte {
	frame := []byte{0xA1, board.InputExtension8Bytes, 0x00, 0x00}
	return append(frame, be16(raw, raw, raw, raw)...)
}

// standOnFrames 站上 70 kg 若干帧后离开
func standOnFrames(n int) [][]byte {
	frames := make([][]byte, 0, n+2)
	frames = append(frames, sensorFrame(1000))
	for i := 0; i < n; i++ {
		frames = append(frames, sensorFrame(2750))
	}
	return append(frames, sensorFrame(1000))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Board.Address = "00:1E:35:AA:BB:CC"
	cfg.Board.PollInterval = 5 * time.Millisecond
	cfg.Processor = processor.DefaultConfiguration()
	cfg.Users = []models.UserProfile{{Name: "Alex", WeightKg: 71}, {Name: "Olya", WeightKg: 57}}
	cfg.Aggregation.StandOnThresholdKg = 10
	cfg.Aggregation.RenderInterval = 500 * time.Millisecond
	cfg.Aggregation.WeightCorrectionKg = 2
	cfg.Display.Hold = time.Millisecond
	return cfg
}

func sqliteHistory(t *testing.T) *repository.SQLHistoryStore {
	t.Helper()
	db, err := database.NewSQLiteDB(&commonconfig.SQLiteConfig{Path: filepath.Join(t.TempDir(), "scale.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))
	return repository.NewSQLHistoryStore(db, repository.DialectSQLite, zap.NewNop())
}

type harness struct {
	svc     *ScaleService
	dialer  *fakeDialer
	history *repository.SQLHistoryStore
	display *fakeDisplay
	fwd     *MockForwarder
}

func newHarness(t *testing.T, cfg *config.Config, finder AddressFinder, reset ResetLine) *harness {
	h := &harness{
		dialer:  &fakeDialer{data: &fakeChannel{}, control: &fakeChannel{}},
		history: sqliteHistory(t),
		display: &fakeDisplay{},
		fwd:     new(MockForwarder),
	}
	h.svc = NewScaleServiceWith(cfg, Components{
		Dialer:    h.dialer,
		Finder:    finder,
		Reset:     reset,
		History:   h.history,
		Forwarder: h.fwd,
		Display:   h.display,
	}, zap.NewNop())
	h.svc.retryDelay = 5 * time.Millisecond
	return h
}

func TestRunCycle_Pipeline(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.fwd.On("LogWeight", mock.Anything, "Alex", 72.0).Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, h.svc.connect(ctx))
	h.dialer.data.frames = append(calibrationFrames(), standOnFrames(5)...)

	record, err := h.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Alex", record.User)
	assert.Equal(t, 72.0, record.W)
	assert.True(t, record.Morning)
	assert.True(t, record.Last)

	stored, err := h.history.LastMorning(ctx, "Alex")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, record.ID, stored.ID)

	texts := h.display.Texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "72.0", texts[0])
	assert.Equal(t, "72.0", texts[len(texts)-1])
	assert.Equal(t, 1, h.display.cleared)

	written := h.dialer.control.Written()
	assert.Contains(t, written, board.LightCommand(true))
	assert.Equal(t, board.LightCommand(false), written[len(written)-1])
	assert.False(t, h.svc.Board().Light())

	w, _ := h.svc.processor.Roster().Weight("Alex")
	assert.Equal(t, 72.0, w)
	h.fwd.AssertExpectations(t)
}

func TestRunCycle_SecondMeasurementSameDayIsRegular(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.fwd.On("LogWeight", mock.Anything, "Alex", 72.0).Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, h.svc.connect(ctx))
	h.dialer.data.frames = append(calibrationFrames(), standOnFrames(3)...)
	first, err := h.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, first.Morning)

	h.dialer.data.mu.Lock()
	h.dialer.data.frames = standOnFrames(3)
	h.dialer.data.mu.Unlock()
	second, err := h.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, second.Morning)
	assert.False(t, second.Last)

	records, err := h.history.ListByUser(ctx, "Alex")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	h.fwd.AssertExpectations(t)
}

func TestRunCycle_LinkLost(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	ctx := context.Background()
	require.NoError(t, h.svc.connect(ctx))

	h.dialer.data.Close()
	_, err := h.svc.RunCycle(ctx)
	assert.ErrorIs(t, err, board.ErrConnection)
	assert.False(t, h.svc.Board().IsConnected())
}

func TestConnect_UsesDiscovery(t *testing.T) {
	cfg := testConfig()
	cfg.Board.Address = ""

	finder := &fakeFinder{}
	h := newHarness(t, cfg, finder, nil)
	assert.ErrorIs(t, h.svc.connect(context.Background()), errBoardNotFound)

	finder.address, finder.found = "00:1E:35:00:00:01", true
	require.NoError(t, h.svc.connect(context.Background()))
	assert.Equal(t, "00:1E:35:00:00:01", h.svc.Board().Address())
	assert.Equal(t, 2, finder.calls)
}

func TestStartStop(t *testing.T) {
	reset := &fakeReset{err: errors.New("gpio busy")}
	h := newHarness(t, testConfig(), nil, reset)
	h.fwd.On("LogWeight", mock.Anything, "Alex", 72.0).Return(nil)
	h.dialer.data.frames = append(calibrationFrames(), standOnFrames(4)...)

	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() { errCh <- h.svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		rec, err := h.history.Last(ctx, "Alex")
		return err == nil && rec != nil
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.svc.Stop(stopCtx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, 1, reset.pulses)
	assert.Equal(t, board.StateDisconnected, h.svc.Board().State())
}

func TestStart_HydratesRosterFromHistory(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	ctx := context.Background()

	rec := models.NewWeightRecord(60.5, time.Now().AddDate(0, 0, -1))
	rec.User, rec.Morning, rec.Last = "Olya", true, true
	require.NoError(t, h.history.Save(ctx, rec))
	require.NoError(t, h.history.Commit(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- h.svc.Start(runCtx) }()

	require.Eventually(t, func() bool {
		w, _ := h.svc.processor.Roster().Weight("Olya")
		return w == 60.5
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

// slowDialer 数据通道拨号阻塞到 ctx 取消后才成功，模拟 Stop 时正在进行的连接
type slowDialer struct {
	fakeDialer
	dialing chan struct{}
	once    sync.Once
}

func (d *slowDialer) Dial(ctx context.Context, address string, psm uint16) (board.Channel, error) {
	if psm == board.PSMData {
		d.once.Do(func() { close(d.dialing) })
		<-ctx.Done()
	}
	return d.fakeDialer.Dial(ctx, address, psm)
}

func TestStop_DuringConnectClosesLink(t *testing.T) {
	dialer := &slowDialer{
		fakeDialer: fakeDialer{data: &fakeChannel{}, control: &fakeChannel{}},
		dialing:    make(chan struct{}),
	}
	svc := NewScaleServiceWith(testConfig(), Components{
		Dialer:  dialer,
		History: sqliteHistory(t),
		Display: &fakeDisplay{},
	}, zap.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(context.Background()) }()

	select {
	case <-dialer.dialing:
	case <-time.After(time.Second):
		t.Fatal("board was never dialed")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, board.StateDisconnected, svc.Board().State())
	dialer.data.mu.Lock()
	assert.True(t, dialer.data.closed)
	dialer.data.mu.Unlock()
	dialer.control.mu.Lock()
	assert.True(t, dialer.control.closed)
	dialer.control.mu.Unlock()
}

package tables

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/input"
)

// MockStore 模拟绑定存储
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Buttons(ctx context.Context, game string) ([]*input.Button, error) {
	args := m.Called(ctx, game)
	return args.Get(0).([]*input.Button), args.Error(1)
}

func (m *MockStore) Analogs(ctx context.Context, game string) ([]*input.Analog, error) {
	args := m.Called(ctx, game)
	return args.Get(0).([]*input.Analog), args.Error(1)
}

func (m *MockStore) Lights(ctx context.Context, game string) ([]*input.Light, error) {
	args := m.Called(ctx, game)
	return args.Get(0).([]*input.Light), args.Error(1)
}

func (m *MockStore) Options(ctx context.Context, game string, defs []input.OptionDefinition) ([]*input.Option, error) {
	args := m.Called(ctx, game, defs)
	return args.Get(0).([]*input.Option), args.Error(1)
}

var testLayout = &Layout{
	Game:    "test",
	Buttons: []string{"Key1", "Key2", "Key3"},
	Analogs: []string{"Fader"},
	Lights:  []string{"Lamp1", "Lamp2"},
	Options: []input.OptionDefinition{
		{Name: "freeze", Type: input.OptionBool, Default: "0"},
		{Name: "cab", Type: input.OptionEnum, Default: "A"},
	},
}

func btn(name string, code uint16) *input.Button {
	b := input.NewButton(name)
	b.KeyCode = code
	b.Device = input.DeviceVirtual
	return b
}

func TestAlignmentDropAndPad(t *testing.T) {
	store := NewMemoryStore()
	// 存储顺序与规范顺序不同，并包含未知名称和重复名称
	store.AddButton("test", btn("Key3", 3))
	store.AddButton("test", btn("Unknown", 9))
	store.AddButton("test", btn("Key1", 1))
	store.AddButton("test", btn("Key1", 11))
	store.AddButton("other", btn("Key2", 2))
	store.SetOption("test", "cab", "B")

	reg := NewRegistry(store)
	set := reg.Load(context.Background(), testLayout)

	require.Len(t, set.Buttons, 3)
	assert.Equal(t, "Key1", set.Button(0).Name)
	assert.Equal(t, uint16(1), set.Button(0).KeyCode)
	require.Len(t, set.Button(0).Alternatives, 1)
	assert.Equal(t, uint16(11), set.Button(0).Alternatives[0].KeyCode)

	// 缺失的 Key2 补占位
	assert.Equal(t, "Key2", set.Button(1).Name)
	assert.False(t, set.Button(1).IsSet())

	assert.Equal(t, "Key3", set.Button(2).Name)
	assert.Equal(t, uint16(3), set.Button(2).KeyCode)

	require.Len(t, set.Analogs, 1)
	assert.Equal(t, "Fader", set.Analog(0).Name)
	require.Len(t, set.Lights, 2)
	assert.Equal(t, "Lamp2", set.Light(1).Name)

	require.Len(t, set.Options, 2)
	assert.False(t, set.Option("freeze").ValueBool())
	assert.Equal(t, "B", set.Option("cab").ValueText())
	assert.Nil(t, set.Option("missing"))

	_, ok := set.ButtonByName("Unknown")
	assert.False(t, ok)
}

func TestBuildOnce(t *testing.T) {
	store := new(MockStore)
	store.On("Buttons", mock.Anything, "test").Return([]*input.Button{btn("Key2", 2)}, nil).Once()
	store.On("Analogs", mock.Anything, "test").Return([]*input.Analog{}, nil).Once()
	store.On("Lights", mock.Anything, "test").Return([]*input.Light{}, nil).Once()
	store.On("Options", mock.Anything, "test", testLayout.Options).Return([]*input.Option{}, nil).Once()

	reg := NewRegistry(store)
	first := reg.Buttons(context.Background(), testLayout)
	second := reg.Buttons(context.Background(), testLayout)
	_ = reg.Lights(context.Background(), testLayout)
	_ = reg.Analogs(context.Background(), testLayout)
	_ = reg.Options(context.Background(), testLayout)

	require.Len(t, first, 3)
	assert.Same(t, first[1], second[1])
	store.AssertExpectations(t)

	got, ok := reg.Get("test")
	require.True(t, ok)
	assert.Same(t, first[1], got.Buttons[1])

	buttons, analogs := reg.Controls()
	assert.Len(t, buttons, 3)
	assert.Len(t, analogs, 1)
}

func TestStoreErrorYieldsPlaceholders(t *testing.T) {
	store := new(MockStore)
	store.On("Buttons", mock.Anything, "test").Return([]*input.Button(nil), errors.New("磁盘错误"))
	store.On("Analogs", mock.Anything, "test").Return([]*input.Analog(nil), errors.New("磁盘错误"))
	store.On("Lights", mock.Anything, "test").Return([]*input.Light(nil), errors.New("磁盘错误"))
	store.On("Options", mock.Anything, "test", mock.Anything).Return([]*input.Option(nil), errors.New("磁盘错误"))

	set := NewRegistry(store).Load(context.Background(), testLayout)
	require.Len(t, set.Buttons, 3)
	for _, b := range set.Buttons {
		assert.False(t, b.IsSet())
	}
	assert.Equal(t, "0", set.Option("freeze").Value)
}

func TestNilStore(t *testing.T) {
	set := NewRegistry(nil).Load(context.Background(), testLayout)
	assert.Len(t, set.Buttons, 3)
	assert.Len(t, set.Lights, 2)
}

func TestIndexOutOfRangePanics(t *testing.T) {
	set := NewRegistry(nil).Load(context.Background(), testLayout)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*apperrors.AppError)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrTableIndex, err.Code)
	}()
	set.Button(len(testLayout.Buttons))
}

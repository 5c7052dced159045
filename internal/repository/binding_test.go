package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/models"
	"github.com/wfunc/arcade-shim/internal/tables"
)

// BindingRepositoryTestSuite 绑定仓库测试套件
type BindingRepositoryTestSuite struct {
	suite.Suite
	repo *BindingRepository
	ctx  context.Context
}

func (s *BindingRepositoryTestSuite) SetupTest() {
	s.repo = NewBindingRepository(SetupTestDB(s.T()))
	s.ctx = context.Background()
}

func (s *BindingRepositoryTestSuite) TestButtonsOrderedByOrdinal() {
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{
		Game: "iidx", Name: "P1 1", Ordinal: 1, Device: "virtual", KeyCode: 0x41,
	}))
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{
		Game: "iidx", Name: "P1 1", Ordinal: 0, Device: "keyboard", KeyCode: 0x5A, DebounceDown: 0.002,
	}))
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{
		Game: "gitadora", Name: "P1 R", Device: "keyboard", KeyCode: 0x31,
	}))

	buttons, err := s.repo.Buttons(s.ctx, "iidx")
	s.Require().NoError(err)
	s.Require().Len(buttons, 2)
	s.Equal("keyboard", buttons[0].Device)
	s.Equal(uint16(0x5A), buttons[0].KeyCode)
	s.Equal(0.002, buttons[0].DebounceDown)
	s.Equal("virtual", buttons[1].Device)
}

func (s *BindingRepositoryTestSuite) TestSaveOverwritesSameOrdinal() {
	b := &models.ButtonBinding{Game: "iidx", Name: "Start", Device: "keyboard", KeyCode: 0x0D}
	s.Require().NoError(s.repo.SaveButton(s.ctx, b))
	firstID := b.ID

	again := &models.ButtonBinding{Game: "iidx", Name: "Start", Device: "keyboard", KeyCode: 0x20, Invert: true}
	s.Require().NoError(s.repo.SaveButton(s.ctx, again))
	s.Equal(firstID, again.ID)

	buttons, err := s.repo.Buttons(s.ctx, "iidx")
	s.Require().NoError(err)
	s.Require().Len(buttons, 1)
	s.Equal(uint16(0x20), buttons[0].KeyCode)
	s.True(buttons[0].Invert)
}

func (s *BindingRepositoryTestSuite) TestAnalogsAndLights() {
	s.Require().NoError(s.repo.SaveAnalog(s.ctx, &models.AnalogBinding{
		Game: "gitadora", Name: "P1 Wail X", Device: "hid:guitar", Index: 2,
		Sensitivity: 1.5, Deadzone: 0.1, DeadzoneMirror: true, Smoothing: true,
	}))
	s.Require().NoError(s.repo.SaveLight(s.ctx, &models.LightBinding{
		Game: "gitadora", Name: "P1 Spot", Device: "hid:guitar", Index: 0,
	}))

	analogs, err := s.repo.Analogs(s.ctx, "gitadora")
	s.Require().NoError(err)
	s.Require().Len(analogs, 1)
	a := analogs[0]
	s.Equal(2, a.Index)
	s.Equal(1.5, a.Sensitivity)
	s.True(a.DeadzoneMirror)
	s.True(a.Smoothing)
	s.True(a.IsBound())

	lights, err := s.repo.Lights(s.ctx, "gitadora")
	s.Require().NoError(err)
	s.Require().Len(lights, 1)
	s.Equal(0, lights[0].Index)
	s.True(lights[0].IsBound())
}

func (s *BindingRepositoryTestSuite) TestOptionsMultiValue() {
	defs := []input.OptionDefinition{
		{Name: "Disable P2", Type: input.OptionBool},
		{Name: "Ports", Type: input.OptionText},
	}
	s.Require().NoError(s.repo.SetOption(s.ctx, "gitadora", "Ports", "COM1", "COM2"))
	s.Require().NoError(s.repo.SetOption(s.ctx, "gitadora", "Disable P2", "true"))
	s.Require().NoError(s.repo.SetOption(s.ctx, "gitadora", "Unknown", "x"))

	opts, err := s.repo.Options(s.ctx, "gitadora", defs)
	s.Require().NoError(err)
	s.Require().Len(opts, 2)

	byName := map[string]*input.Option{}
	for _, o := range opts {
		byName[o.Definition.Name] = o
	}
	s.True(byName["Disable P2"].ValueBool())
	s.Equal([]string{"COM1", "COM2"}, byName["Ports"].ValueTexts())

	// 再次设置时替换全部值
	s.Require().NoError(s.repo.SetOption(s.ctx, "gitadora", "Ports", "COM3"))
	opts, err = s.repo.Options(s.ctx, "gitadora", defs)
	s.Require().NoError(err)
	for _, o := range opts {
		if o.Definition.Name == "Ports" {
			s.Equal([]string{"COM3"}, o.ValueTexts())
		}
	}
}

func (s *BindingRepositoryTestSuite) TestRegistryAlignsStoredBindings() {
	layout := &tables.Layout{
		Game:    "demo",
		Buttons: []string{"A", "B", "C"},
		Lights:  []string{"Lamp"},
	}
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{Game: "demo", Name: "C", Device: "keyboard", KeyCode: 3}))
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{Game: "demo", Name: "Z", Device: "keyboard", KeyCode: 9}))
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{Game: "demo", Name: "A", Device: "keyboard", KeyCode: 1}))
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{Game: "demo", Name: "A", Ordinal: 1, Device: "virtual", KeyCode: 11}))

	set := tables.NewRegistry(s.repo).Load(s.ctx, layout)
	s.Require().Len(set.Buttons, 3)
	s.Equal("A", set.Buttons[0].Name)
	s.Equal(uint16(1), set.Buttons[0].KeyCode)
	s.Require().Len(set.Buttons[0].Alternatives, 1)
	s.Equal(uint16(11), set.Buttons[0].Alternatives[0].KeyCode)
	s.False(set.Buttons[1].IsSet())
	s.Equal(uint16(3), set.Buttons[2].KeyCode)
	s.False(set.Lights[0].IsBound())
}

func (s *BindingRepositoryTestSuite) TestDeleteGame() {
	s.Require().NoError(s.repo.SaveButton(s.ctx, &models.ButtonBinding{Game: "iidx", Name: "Start", Device: "keyboard", KeyCode: 1}))
	s.Require().NoError(s.repo.SetOption(s.ctx, "iidx", "Disable Card Reader", "1"))
	s.Require().NoError(s.repo.DeleteGame(s.ctx, "iidx"))

	buttons, err := s.repo.Buttons(s.ctx, "iidx")
	s.Require().NoError(err)
	s.Empty(buttons)
	opts, err := s.repo.Options(s.ctx, "iidx", []input.OptionDefinition{{Name: "Disable Card Reader", Type: input.OptionBool}})
	s.Require().NoError(err)
	s.Empty(opts)
}

func TestBindingRepositorySuite(t *testing.T) {
	suite.Run(t, new(BindingRepositoryTestSuite))
}

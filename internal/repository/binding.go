package repository

import (
	"context"
	"time"

	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/input"
	"github.com/wfunc/arcade-shim/internal/models"
	"gorm.io/gorm"
)

// BindingRepository 绑定存储，实现 tables.Store
//
// 同一游戏同名的多条记录按 (ordinal, id) 排序返回，第一条是主绑定，其余由控件表并入备用列表。
type BindingRepository struct {
	*BaseRepo
}

// NewBindingRepository 创建绑定仓库
func NewBindingRepository(db *gorm.DB) *BindingRepository {
	return &BindingRepository{BaseRepo: NewBaseRepo(db)}
}

func (r *BindingRepository) ordered(ctx context.Context, game string) *gorm.DB {
	return r.db.WithContext(ctx).Where("game = ?", game).Order("ordinal ASC, id ASC")
}

// Buttons 实现 tables.Store
func (r *BindingRepository) Buttons(ctx context.Context, game string) ([]*input.Button, error) {
	var rows []models.ButtonBinding
	if err := r.ordered(ctx, game).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "button_bindings")
	}
	out := make([]*input.Button, 0, len(rows))
	for _, row := range rows {
		out = append(out, &input.Button{
			Name:         row.Name,
			KeyCode:      row.KeyCode,
			AnalogType:   input.AnalogType(row.AnalogType),
			DebounceUp:   row.DebounceUp,
			DebounceDown: row.DebounceDown,
			Invert:       row.Invert,
			Device:       row.Device,
		})
	}
	return out, nil
}

// Analogs 实现 tables.Store
func (r *BindingRepository) Analogs(ctx context.Context, game string) ([]*input.Analog, error) {
	var rows []models.AnalogBinding
	if err := r.ordered(ctx, game).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "analog_bindings")
	}
	out := make([]*input.Analog, 0, len(rows))
	for _, row := range rows {
		out = append(out, &input.Analog{
			Name:           row.Name,
			Device:         row.Device,
			Index:          row.Index,
			Sensitivity:    row.Sensitivity,
			Deadzone:       row.Deadzone,
			DeadzoneMirror: row.DeadzoneMirror,
			Invert:         row.Invert,
			Smoothing:      row.Smoothing,
		})
	}
	return out, nil
}

// Lights 实现 tables.Store
func (r *BindingRepository) Lights(ctx context.Context, game string) ([]*input.Light, error) {
	var rows []models.LightBinding
	if err := r.ordered(ctx, game).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "light_bindings")
	}
	out := make([]*input.Light, 0, len(rows))
	for _, row := range rows {
		out = append(out, &input.Light{
			Name:   row.Name,
			Device: row.Device,
			Index:  row.Index,
		})
	}
	return out, nil
}

// Options 实现 tables.Store。同名多条记录中第一条是当前值，其余进入 Alternatives
func (r *BindingRepository) Options(ctx context.Context, game string, defs []input.OptionDefinition) ([]*input.Option, error) {
	var rows []models.OptionSetting
	if err := r.ordered(ctx, game).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "option_settings")
	}

	known := make(map[string]input.OptionDefinition, len(defs))
	for _, d := range defs {
		known[d.Name] = d
	}

	byName := make(map[string]*input.Option)
	var out []*input.Option
	for _, row := range rows {
		def, ok := known[row.Name]
		if !ok {
			continue
		}
		if o, seen := byName[row.Name]; seen {
			o.Alternatives = append(o.Alternatives, row.Value)
			continue
		}
		o := &input.Option{Definition: def, Value: row.Value, Disabled: row.Disabled}
		byName[row.Name] = o
		out = append(out, o)
	}
	return out, nil
}

// SaveButton 写入按键绑定，(game, name, ordinal) 已存在时覆盖
func (r *BindingRepository) SaveButton(ctx context.Context, b *models.ButtonBinding) error {
	return r.upsert(ctx, b, &models.ButtonBinding{}, b.Game, b.Name, b.Ordinal, func(id uint, at time.Time) { b.ID, b.CreatedAt = id, at })
}

// SaveAnalog 写入模拟量绑定
func (r *BindingRepository) SaveAnalog(ctx context.Context, a *models.AnalogBinding) error {
	return r.upsert(ctx, a, &models.AnalogBinding{}, a.Game, a.Name, a.Ordinal, func(id uint, at time.Time) { a.ID, a.CreatedAt = id, at })
}

// SaveLight 写入灯光绑定
func (r *BindingRepository) SaveLight(ctx context.Context, l *models.LightBinding) error {
	return r.upsert(ctx, l, &models.LightBinding{}, l.Game, l.Name, l.Ordinal, func(id uint, at time.Time) { l.ID, l.CreatedAt = id, at })
}

// upsert 按 (game, name, ordinal) 查找已有记录，存在时沿用其ID和创建时间整行保存
func (r *BindingRepository) upsert(ctx context.Context, value, probe interface{}, game, name string, ordinal int, keep func(uint, time.Time)) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		var existing struct {
			ID        uint
			CreatedAt time.Time
		}
		err := tx.Model(probe).
			Select("id", "created_at").
			Where("game = ? AND name = ? AND ordinal = ?", game, name, ordinal).
			Take(&existing).Error
		switch {
		case err == nil:
			keep(existing.ID, existing.CreatedAt)
		case err != gorm.ErrRecordNotFound:
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, name)
		}
		if err := tx.Save(value).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, name)
		}
		return nil
	})
}

// SetOption 设置选项值，替换该选项已有的全部值
func (r *BindingRepository) SetOption(ctx context.Context, game, name string, values ...string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("game = ? AND name = ?", game, name).Delete(&models.OptionSetting{}).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, name)
		}
		for i, v := range values {
			row := &models.OptionSetting{Game: game, Name: name, Ordinal: i, Value: v}
			if err := tx.Create(row).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, name)
			}
		}
		return nil
	})
}

// DeleteGame 删除游戏的全部绑定和选项
func (r *BindingRepository) DeleteGame(ctx context.Context, game string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&models.ButtonBinding{},
			&models.AnalogBinding{},
			&models.LightBinding{},
			&models.OptionSetting{},
		} {
			if err := tx.Where("game = ?", game).Delete(m).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, game)
			}
		}
		return nil
	})
}

package canvas

import (
	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
	"flowstudio/domain/history"
)

// CropHistory records crop box geometry and image scale so crop edits can
// be undone. It reads and writes geometry on objects it is handed and never
// creates or destroys surfaces.
type CropHistory struct {
	history *history.History[valueobjects.CropRecord]
}

// NewCropHistory creates an adapter keeping at most maxSteps records.
func NewCropHistory(maxSteps int) *CropHistory {
	return &CropHistory{history: history.New[valueobjects.CropRecord](maxSteps)}
}

// SaveCurrentState snapshots the crop box bounds and image scale. Nothing
// is recorded when either object is missing.
func (c *CropHistory) SaveCurrentState(cropBox, image ports.Object) {
	if cropBox == nil || image == nil {
		return
	}
	c.history.Save(valueobjects.NewCropRecord(cropBox.Bounds(), image.Scale()))
}

// RestoreFromHistory writes rec back onto the objects and redraws. It does
// nothing when any collaborator is missing.
func (c *CropHistory) RestoreFromHistory(rec valueobjects.CropRecord, cropBox, image ports.Object, surface ports.Surface) error {
	if cropBox == nil || image == nil || surface == nil {
		return nil
	}
	cropBox.SetBounds(rec.Box())
	image.SetScale(rec.Scale())
	return surface.Render()
}

// Undo steps back one record and applies the state now current. The
// oldest record is the baseline and is never undone.
func (c *CropHistory) Undo(cropBox, image ports.Object, surface ports.Surface) (valueobjects.CropRecord, bool, error) {
	if !c.CanUndo() {
		return valueobjects.CropRecord{}, false, nil
	}
	rec, ok := c.history.Undo()
	if !ok {
		return valueobjects.CropRecord{}, false, nil
	}
	return rec, true, c.RestoreFromHistory(rec, cropBox, image, surface)
}

// Redo reapplies the most recently undone record.
func (c *CropHistory) Redo(cropBox, image ports.Object, surface ports.Surface) (valueobjects.CropRecord, bool, error) {
	rec, ok := c.history.Redo()
	if !ok {
		return valueobjects.CropRecord{}, false, nil
	}
	return rec, true, c.RestoreFromHistory(rec, cropBox, image, surface)
}

// CanUndo reports whether a state earlier than the current one exists.
func (c *CropHistory) CanUndo() bool { return c.history.Len() > 1 }

// CanRedo reports whether an undone state can be reapplied.
func (c *CropHistory) CanRedo() bool { return c.history.CanRedo() }

// Current returns the record the crop box currently reflects.
func (c *CropHistory) Current() (valueobjects.CropRecord, bool) {
	return c.history.Current()
}

// Len returns the number of undo records.
func (c *CropHistory) Len() int { return c.history.Len() }

// SetMaxSteps changes the depth, dropping the oldest records if needed.
func (c *CropHistory) SetMaxSteps(n int) { c.history.SetMaxSteps(n) }

// Reset forgets every record.
func (c *CropHistory) Reset() { c.history.Clear() }

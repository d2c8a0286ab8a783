package commands

import "errors"

// UpdateAssetCommand renames an asset or points it at new media. At least
// one field must be set.
type UpdateAssetCommand struct {
	AssetID string  `json:"asset_id" validate:"required,max=100"`
	Name    *string `json:"name" validate:"omitempty,max=200"`
	URL     *string `json:"url" validate:"omitempty,min=1"`
}

func (c UpdateAssetCommand) Validate() error {
	if err := validate(c, nil); err != nil {
		return err
	}
	if c.Name == nil && c.URL == nil {
		return errors.New("nothing to update")
	}
	return nil
}

// DeleteAssetCommand removes a stored asset. Nodes linked to it keep
// their media.
type DeleteAssetCommand struct {
	AssetID string `json:"asset_id" validate:"required,max=100"`
}

func (c DeleteAssetCommand) Validate() error {
	return validate(c, nil)
}

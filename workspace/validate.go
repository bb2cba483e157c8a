package workspace

import "lichtfeld/models"

// ValidateOutput fails with KindEmptyOutput unless dir is an existing directory with at least one entry.
func ValidateOutput(dir string) error {
	if !isDir(dir) {
		return models.NewError(models.KindEmptyOutput, "validate", nil, "workspace %s was not created", dir)
	}
	empty, err := isEmptyDir(dir)
	if err != nil {
		return models.NewError(models.KindEmptyOutput, "validate", err, "workspace %s is not readable", dir)
	}
	if empty {
		return models.NewError(models.KindEmptyOutput, "validate", nil, "workspace %s is empty", dir)
	}
	return nil
}

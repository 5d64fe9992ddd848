package draft

// applyUserEdit is the single path through which a human edit lands on a
// field. It always stamps MANUAL lineage; Strategy and Confidence keep
// describing the last automated fill.
func applyUserEdit(f *Field, edit func(*Field)) Outcome {
	edit(f)
	f.Lineage = LineageManual
	return Applied
}

// SetValue sets the value of a text, textarea, dropdown, date or currency field.
func SetValue(f *Field, text string) Outcome {
	if f == nil {
		return NoOpUnknownField
	}
	if !f.Type.acceptsPlainValue() {
		return NoOpWrongType
	}
	return applyUserEdit(f, func(f *Field) {
		f.Value = text
	})
}

// SetYesNo answers a yesno field, keeping Value and YesNoValue in step.
func SetYesNo(f *Field, answer bool) Outcome {
	if f == nil {
		return NoOpUnknownField
	}
	if f.Type != TypeYesNo {
		return NoOpWrongType
	}
	return applyUserEdit(f, func(f *Field) {
		f.YesNoValue = answer
		f.Value = yesNoString(answer)
	})
}

// AddBulletItem appends an item to a bullet_list field. The item may be
// empty; the editor fills it in with UpdateBulletItem.
func AddBulletItem(f *Field, text string) Outcome {
	if f == nil {
		return NoOpUnknownField
	}
	if f.Type != TypeBulletList {
		return NoOpWrongType
	}
	return applyUserEdit(f, func(f *Field) {
		f.BulletItems = append(f.BulletItems, text)
		f.Value = joinBullets(f.BulletItems)
	})
}

// UpdateBulletItem replaces the text of the item at index.
func UpdateBulletItem(f *Field, index int, text string) Outcome {
	if f == nil {
		return NoOpUnknownField
	}
	if f.Type != TypeBulletList {
		return NoOpWrongType
	}
	if index < 0 || index >= len(f.BulletItems) {
		return NoOpOutOfRange
	}
	return applyUserEdit(f, func(f *Field) {
		f.BulletItems[index] = text
		f.Value = joinBullets(f.BulletItems)
	})
}

// RemoveBulletItem deletes the item at index. An index outside the list
// leaves the field untouched.
func RemoveBulletItem(f *Field, index int) Outcome {
	if f == nil {
		return NoOpUnknownField
	}
	if f.Type != TypeBulletList {
		return NoOpWrongType
	}
	if index < 0 || index >= len(f.BulletItems) {
		return NoOpOutOfRange
	}
	return applyUserEdit(f, func(f *Field) {
		items := make([]string, 0, len(f.BulletItems)-1)
		items = append(items, f.BulletItems[:index]...)
		items = append(items, f.BulletItems[index+1:]...)
		f.BulletItems = items
		f.Value = joinBullets(f.BulletItems)
	})
}

// ToggleMultiselectOption adds option to the selection if absent and removes
// it if present. Value lists the selection in toggle order.
func ToggleMultiselectOption(f *Field, option string) Outcome {
	if f == nil {
		return NoOpUnknownField
	}
	if f.Type != TypeMultiselect {
		return NoOpWrongType
	}
	if option == "" {
		return NoOpEmptyText
	}
	return applyUserEdit(f, func(f *Field) {
		next := make([]string, 0, len(f.selection)+1)
		removed := false
		for _, selected := range f.selection {
			if selected == option {
				removed = true
				continue
			}
			next = append(next, selected)
		}
		if !removed {
			next = append(next, option)
		}
		f.selection = next
		f.Value = joinSelection(next)
	})
}

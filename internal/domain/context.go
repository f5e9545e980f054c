package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ContextSlot names a fixed category of girl-specific reference material that
// exists independently of any single job.
type ContextSlot string

const (
	ContextSlotBedroom  ContextSlot = "bedroom"
	ContextSlotBathroom ContextSlot = "bathroom"
	ContextSlotPhone    ContextSlot = "phone"
)

// ContextSlots lists every slot in the order their images are appended to a
// job's reference list.
var ContextSlots = []ContextSlot{ContextSlotBedroom, ContextSlotBathroom, ContextSlotPhone}

var slotTitle = cases.Title(language.English)

// ValidContextSlot reports whether value names a known slot.
func ValidContextSlot(value string) bool {
	for _, slot := range ContextSlots {
		if string(slot) == value {
			return true
		}
	}
	return false
}

// Label returns the display form of the slot name.
func (s ContextSlot) Label() string {
	return slotTitle.String(string(s))
}

// ContextAsset holds one slot's reference material. Either field may be empty;
// an asset with neither is empty and cannot be selected.
type ContextAsset struct {
	ImageID     string `json:"imageId"`
	Description string `json:"description"`
}

// Empty reports whether the asset carries no usable material.
func (a ContextAsset) Empty() bool {
	return a.ImageID == "" && a.Description == ""
}

// ContextAssets maps each slot to its asset.
type ContextAssets map[ContextSlot]ContextAsset

// EmptyContextAssets returns a fully populated map of empty assets.
func EmptyContextAssets() ContextAssets {
	assets := make(ContextAssets, len(ContextSlots))
	for _, slot := range ContextSlots {
		assets[slot] = ContextAsset{}
	}
	return assets
}

// NormalizeContextAssets trims stored values and guarantees every known slot
// is present, dropping unknown keys.
func NormalizeContextAssets(raw ContextAssets) ContextAssets {
	assets := EmptyContextAssets()
	for _, slot := range ContextSlots {
		input, ok := raw[slot]
		if !ok {
			continue
		}
		assets[slot] = ContextAsset{
			ImageID:     strings.TrimSpace(input.ImageID),
			Description: strings.TrimSpace(input.Description),
		}
	}
	return assets
}

// MergeContextAsset applies a partial update to an existing asset. Nil fields
// keep the existing value; empty strings clear it.
func MergeContextAsset(existing ContextAsset, imageID, description *string) ContextAsset {
	merged := existing
	if imageID != nil {
		merged.ImageID = strings.TrimSpace(*imageID)
	}
	if description != nil {
		merged.Description = strings.TrimSpace(*description)
	}
	return merged
}

// ContextSelection is a job's per-slot request: include the slot's image as a
// reference, include its description as synthesized prompt text, or both.
type ContextSelection struct {
	UseImage bool `json:"useImage"`
	UseText  bool `json:"useText"`
}

// ResolvedContext is the per-slot audit record of what a selection actually
// contributed. A requested image or text the asset could not satisfy is
// demoted: Requested stays true, Applied stays false, no error is raised.
// ReferenceIndex is the 1-based ordinal of the slot's image in the combined
// reference list, 0 when the image was not applied.
type ResolvedContext struct {
	RequestedImage bool   `json:"requestedImage"`
	RequestedText  bool   `json:"requestedText"`
	ImageID        string `json:"imageId,omitempty"`
	Description    string `json:"description,omitempty"`
	AppliedImage   bool   `json:"appliedImage"`
	AppliedText    bool   `json:"appliedText"`
	ReferenceIndex int    `json:"referenceIndex,omitempty"`
}

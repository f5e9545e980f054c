package executor

import (
	"fmt"
	"strings"

	"studio/internal/domain"
)

// referencePlan is the fully resolved input set for one execution: the ordered
// reference-image ids, the composed prompt, and the per-slot audit snapshot.
type referencePlan struct {
	CombinedImageIDs []string
	Prompt           string
	Snapshot         map[domain.ContextSlot]*domain.ResolvedContext
}

// buildReferencePlan merges a job's manual references and context selections
// against the girl's context assets. Pure; the only I/O the caller does first
// is loading the assets.
//
// Ordering: manual ids first, then context images in slot order, each id kept
// at its first occurrence only. When neither manual ids nor context images
// exist, the legacy imageIds field is used as-is.
func buildReferencePlan(job *domain.Job, assets domain.ContextAssets) *referencePlan {
	assets = domain.NormalizeContextAssets(assets)

	snapshot := make(map[domain.ContextSlot]*domain.ResolvedContext, len(domain.ContextSlots))
	contextImageBySlot := make(map[domain.ContextSlot]string)
	for _, slot := range domain.ContextSlots {
		selection := job.Inputs.ContextSelections[slot]
		asset := assets[slot]

		entry := &domain.ResolvedContext{
			RequestedImage: selection.UseImage,
			RequestedText:  selection.UseText,
			ImageID:        asset.ImageID,
			Description:    asset.Description,
		}
		if selection.UseImage && asset.ImageID != "" {
			contextImageBySlot[slot] = asset.ImageID
		}
		snapshot[slot] = entry
	}

	seen := make(map[string]struct{})
	var manualIDs []string
	for _, id := range job.Inputs.ManualImageIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		manualIDs = append(manualIDs, id)
		seen[id] = struct{}{}
	}

	slotByImageID := make(map[string]domain.ContextSlot)
	for slot, id := range contextImageBySlot {
		slotByImageID[id] = slot
	}

	combined := append([]string(nil), manualIDs...)
	for _, slot := range domain.ContextSlots {
		id, ok := contextImageBySlot[slot]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		combined = append(combined, id)
		seen[id] = struct{}{}
	}

	// Jobs submitted before the manual / context split carry the whole
	// reference list in the raw imageIds field.
	if len(combined) == 0 {
		for _, id := range job.Inputs.ImageIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			combined = append(combined, id)
			seen[id] = struct{}{}
		}
	}

	for index, id := range combined {
		slot, ok := slotByImageID[id]
		if !ok {
			continue
		}
		if entry := snapshot[slot]; entry.ReferenceIndex == 0 {
			entry.ReferenceIndex = index + 1
		}
	}
	for _, slot := range domain.ContextSlots {
		entry := snapshot[slot]
		entry.AppliedImage = entry.RequestedImage && entry.ReferenceIndex > 0
		entry.AppliedText = entry.RequestedText && entry.Description != ""
	}

	return &referencePlan{
		CombinedImageIDs: combined,
		Prompt:           composePrompt(job.Prompt, snapshot),
		Snapshot:         snapshot,
	}
}

// composePrompt appends synthesized context fragments to the submitted prompt.
// Fragments name the ordinal reference image when the slot's image was applied
// so the model can tie the description to the right picture.
func composePrompt(submitted string, snapshot map[domain.ContextSlot]*domain.ResolvedContext) string {
	submitted = strings.TrimSpace(submitted)

	var pieces []string
	for _, slot := range domain.ContextSlots {
		entry := snapshot[slot]
		if entry == nil || !entry.AppliedText {
			continue
		}
		label := strings.ToLower(slot.Label())
		if entry.ReferenceIndex > 0 {
			pieces = append(pieces, fmt.Sprintf("Use the %s from reference image %d: %s", label, entry.ReferenceIndex, entry.Description))
		} else {
			pieces = append(pieces, fmt.Sprintf("Use her %s as described: %s", label, entry.Description))
		}
	}

	if len(pieces) == 0 {
		return submitted
	}
	joined := strings.Join(pieces, "\n")
	if submitted == "" {
		return joined
	}
	return submitted + "\n\n" + joined
}

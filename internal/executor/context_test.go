package executor

import (
	"reflect"
	"strings"
	"testing"

	"studio/internal/domain"
)

func TestBuildReferencePlanOrdering(t *testing.T) {
	job := &domain.Job{
		ID:     "job-1",
		Prompt: "pose by the window",
		Inputs: domain.JobInputs{
			ManualImageIDs: []string{"a", "b", "b", " "},
			ContextSelections: map[domain.ContextSlot]domain.ContextSelection{
				domain.ContextSlotBedroom: {UseImage: true},
				domain.ContextSlotPhone:   {UseImage: true},
			},
		},
	}
	assets := domain.ContextAssets{
		domain.ContextSlotBedroom: {ImageID: "b"},
		domain.ContextSlotPhone:   {ImageID: "c"},
	}

	plan := buildReferencePlan(job, assets)

	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(plan.CombinedImageIDs, want) {
		t.Fatalf("combined = %v, want %v", plan.CombinedImageIDs, want)
	}

	bedroom := plan.Snapshot[domain.ContextSlotBedroom]
	if !bedroom.AppliedImage || bedroom.ReferenceIndex != 2 {
		t.Fatalf("bedroom should share the manual slot: %+v", bedroom)
	}
	phone := plan.Snapshot[domain.ContextSlotPhone]
	if !phone.AppliedImage || phone.ReferenceIndex != 3 {
		t.Fatalf("phone should be appended last: %+v", phone)
	}
}

func TestBuildReferencePlanSilentDemotion(t *testing.T) {
	job := &domain.Job{
		ID: "job-2",
		Inputs: domain.JobInputs{
			ContextSelections: map[domain.ContextSlot]domain.ContextSelection{
				domain.ContextSlotBathroom: {UseImage: true, UseText: true},
			},
		},
	}

	plan := buildReferencePlan(job, domain.EmptyContextAssets())

	if len(plan.CombinedImageIDs) != 0 {
		t.Fatalf("empty asset should contribute nothing, got %v", plan.CombinedImageIDs)
	}
	entry := plan.Snapshot[domain.ContextSlotBathroom]
	if !entry.RequestedImage || !entry.RequestedText {
		t.Fatalf("requests must stay recorded: %+v", entry)
	}
	if entry.AppliedImage || entry.AppliedText {
		t.Fatalf("nothing should be applied: %+v", entry)
	}
}

func TestBuildReferencePlanLegacyFallback(t *testing.T) {
	job := &domain.Job{
		ID: "job-3",
		Inputs: domain.JobInputs{
			ImageIDs: []string{"x", "y", "x"},
		},
	}

	plan := buildReferencePlan(job, domain.EmptyContextAssets())

	want := []string{"x", "y"}
	if !reflect.DeepEqual(plan.CombinedImageIDs, want) {
		t.Fatalf("legacy ids = %v, want %v", plan.CombinedImageIDs, want)
	}
}

func TestBuildReferencePlanLegacyIgnoredWhenManualPresent(t *testing.T) {
	job := &domain.Job{
		ID: "job-4",
		Inputs: domain.JobInputs{
			ManualImageIDs: []string{"m"},
			ImageIDs:       []string{"x"},
		},
	}

	plan := buildReferencePlan(job, domain.EmptyContextAssets())

	want := []string{"m"}
	if !reflect.DeepEqual(plan.CombinedImageIDs, want) {
		t.Fatalf("combined = %v, want %v", plan.CombinedImageIDs, want)
	}
}

func TestComposePromptFragments(t *testing.T) {
	job := &domain.Job{
		ID:     "job-5",
		Prompt: "evening selfie",
		Inputs: domain.JobInputs{
			ContextSelections: map[domain.ContextSlot]domain.ContextSelection{
				domain.ContextSlotBedroom: {UseImage: true, UseText: true},
				domain.ContextSlotPhone:   {UseText: true},
			},
		},
	}
	assets := domain.ContextAssets{
		domain.ContextSlotBedroom: {ImageID: "img-bed", Description: "warm lamp light"},
		domain.ContextSlotPhone:   {Description: "pink case"},
	}

	plan := buildReferencePlan(job, assets)

	if !strings.HasPrefix(plan.Prompt, "evening selfie\n\n") {
		t.Fatalf("submitted prompt should lead: %q", plan.Prompt)
	}
	if !strings.Contains(plan.Prompt, "Use the bedroom from reference image 1: warm lamp light") {
		t.Fatalf("missing ordinal fragment: %q", plan.Prompt)
	}
	if !strings.Contains(plan.Prompt, "Use her phone as described: pink case") {
		t.Fatalf("missing text-only fragment: %q", plan.Prompt)
	}
}

func TestComposePromptNoFragments(t *testing.T) {
	job := &domain.Job{ID: "job-6", Prompt: "plain prompt"}

	plan := buildReferencePlan(job, domain.EmptyContextAssets())

	if plan.Prompt != "plain prompt" {
		t.Fatalf("prompt should pass through unchanged: %q", plan.Prompt)
	}
}

package stages

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// Converter hands final.md to an external PDF/DOCX conversion service.
// It is an external collaborator, not a library this repository vendors —
// a nil Converter is valid and simply means final.pdf/final.docx are not
// produced for a job, leaving final.md and diagrams.zip as the artifact set.
type Converter interface {
	Convert(ctx context.Context, markdown []byte) (pdf, docx []byte, err error)
}

// FinalizeHandler concatenates every section draft in plan order, embeds
// rendered diagrams, and produces the terminal artifact set. It is the
// last stage — it enqueues nothing further.
type FinalizeHandler struct {
	Deps
	Converter Converter
}

func NewFinalizeHandler(d Deps, converter Converter) *FinalizeHandler {
	return &FinalizeHandler{Deps: d, Converter: converter}
}

func (h *FinalizeHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	plan, err := h.Store.GetPlan(ctx, msg.JobID)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var specs []models.DiagramSpec
	_ = getJSON(ctx, h.Objects, diagramIndexKey(msg.OwnerID, msg.JobID), &specs)
	bySection := make(map[string][]models.DiagramSpec, len(specs))
	for _, s := range specs {
		bySection[s.SectionID] = append(bySection[s.SectionID], s)
	}

	var doc strings.Builder
	for _, s := range plan.Sections {
		draft, err := h.Store.GetSectionDraft(ctx, msg.JobID, s.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("read draft %q: %w", s.ID, err)
		}
		fmt.Fprintf(&doc, "## %s\n\n%s\n\n", s.Title, diagramFence.ReplaceAllStringFunc(draft.Content, func(string) string { return "" }))
		for _, spec := range bySection[s.ID] {
			fmt.Fprintf(&doc, "![%s](diagrams/%s.svg)\n\n", spec.DiagramID, spec.DiagramID)
		}
	}
	markdown := []byte(doc.String())

	if err := h.Objects.Put(ctx, finalKey(msg.OwnerID, msg.JobID, "final.md"), markdown, "text/markdown"); err != nil {
		return nil, fmt.Errorf("persist final.md: %w", err)
	}

	artifacts := &models.FinalArtifactSet{JobID: msg.JobID, ArtifactPath: finalKey(msg.OwnerID, msg.JobID, "final.md")}

	if h.Converter != nil {
		pdf, docx, err := h.Converter.Convert(ctx, markdown)
		if err != nil {
			return nil, fmt.Errorf("convert final document: %w", err)
		}
		if err := h.Objects.Put(ctx, finalKey(msg.OwnerID, msg.JobID, "final.pdf"), pdf, "application/pdf"); err != nil {
			return nil, fmt.Errorf("persist final.pdf: %w", err)
		}
		if err := h.Objects.Put(ctx, finalKey(msg.OwnerID, msg.JobID, "final.docx"), docx, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"); err != nil {
			return nil, fmt.Errorf("persist final.docx: %w", err)
		}
	}

	if len(specs) > 0 {
		archivePath, err := h.bundleDiagrams(ctx, msg.OwnerID, msg.JobID, specs)
		if err != nil {
			return nil, fmt.Errorf("bundle diagrams: %w", err)
		}
		artifacts.DiagramArchivePath = archivePath
	}

	if err := h.Store.SaveFinalArtifacts(ctx, artifacts); err != nil {
		return nil, fmt.Errorf("save final artifacts: %w", err)
	}
	if err := h.Store.SetState(ctx, msg.JobID, models.StateDone); err != nil {
		return nil, fmt.Errorf("advance job state: %w", err)
	}
	return nil, nil
}

func (h *FinalizeHandler) bundleDiagrams(ctx context.Context, owner, jobID string, specs []models.DiagramSpec) (string, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, spec := range specs {
		asset, err := h.Objects.Get(ctx, diagramAssetKey(owner, jobID, spec.DiagramID, "svg"))
		if err != nil {
			return "", fmt.Errorf("read diagram asset %q: %w", spec.DiagramID, err)
		}
		f, err := w.Create(spec.DiagramID + ".svg")
		if err != nil {
			return "", err
		}
		if _, err := f.Write(asset); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close diagram archive: %w", err)
	}

	key := finalKey(owner, jobID, "diagrams.zip")
	if err := h.Objects.Put(ctx, key, buf.Bytes(), "application/zip"); err != nil {
		return "", err
	}
	return key, nil
}

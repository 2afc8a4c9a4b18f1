package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/extract"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
)

// IngestionAdapter resolves a source descriptor into normalized input. Each
// source type (crawl, document, recording) gets its own adapter.
type IngestionAdapter interface {
	Ingest(ctx context.Context, desc types.SourceDescriptor) (extract.NormalizedSource, error)
}

// IngesterSet routes descriptors to the adapter registered for their type.
type IngesterSet struct {
	log      *logger.Logger
	adapters map[string]IngestionAdapter
}

func NewIngesterSet(log *logger.Logger) *IngesterSet {
	return &IngesterSet{
		log:      log.With("service", "IngesterSet"),
		adapters: map[string]IngestionAdapter{},
	}
}

func (s *IngesterSet) Register(sourceType string, adapter IngestionAdapter) {
	s.adapters[strings.ToLower(sourceType)] = adapter
}

func (s *IngesterSet) Ingest(ctx context.Context, desc types.SourceDescriptor) (extract.NormalizedSource, error) {
	adapter, ok := s.adapters[strings.ToLower(desc.Type)]
	if !ok {
		return extract.NormalizedSource{}, fmt.Errorf("%w: no adapter for source type %q", pkgerr.ErrInvalidArgument, desc.Type)
	}
	src, err := adapter.Ingest(ctx, desc)
	if err != nil {
		return extract.NormalizedSource{}, err
	}
	if src.SiteID == "" {
		src.SiteID = desc.SiteID
	}
	if src.SiteID != desc.SiteID {
		return extract.NormalizedSource{}, fmt.Errorf("%w: source site %q does not match descriptor site %q",
			pkgerr.ErrInvalidArgument, src.SiteID, desc.SiteID)
	}
	return src, nil
}

// documentAdapter reads an already-normalized capture from a local file. The
// capture format is the JSON encoding of NormalizedSource, typically produced
// by a crawler run recorded earlier.
type documentAdapter struct {
	log *logger.Logger
}

func NewDocumentAdapter(log *logger.Logger) IngestionAdapter {
	return &documentAdapter{log: log.With("adapter", "document")}
}

func (a *documentAdapter) Ingest(ctx context.Context, desc types.SourceDescriptor) (extract.NormalizedSource, error) {
	if desc.URI == "" {
		return extract.NormalizedSource{}, fmt.Errorf("%w: document source requires a uri", pkgerr.ErrInvalidArgument)
	}
	raw, err := os.ReadFile(desc.URI)
	if err != nil {
		return extract.NormalizedSource{}, fmt.Errorf("read source document: %w", err)
	}
	var src extract.NormalizedSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return extract.NormalizedSource{}, fmt.Errorf("decode source document: %w", err)
	}
	a.log.Debug("ingested source document", "uri", desc.URI,
		"pages", len(src.Pages), "instructions", len(src.Instructions))
	return src, nil
}

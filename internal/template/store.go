// Package template implements the template store: authoring and serving the
// immutable process blueprints that instances are materialized from.
package template

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/repository"
	"github.com/openwind/approvalflow/pkg/database"
)

// NodeSpec describes one authored node. Key names the node within the input;
// NextKey links to the following node and is nil on the terminal node.
// A nil operator leaves the participant slot for dynamic binding at
// instance time.
type NodeSpec struct {
	Key             string                 `json:"key"`
	NextKey         *string                `json:"next_key,omitempty"`
	RejectOperation entity.RejectOperation `json:"reject_operation"`
	Operators       []*string              `json:"operators"`
}

// CreateTemplateInput is the authoring payload for a new template
type CreateTemplateInput struct {
	KindCode string     `json:"kind_code"`
	Comment  string     `json:"comment"`
	Nodes    []NodeSpec `json:"nodes"`
}

// Store authors and serves workflow templates
type Store struct {
	db        *database.DB
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	logger    *zap.Logger
}

// NewStore creates a new template store
func NewStore(
	db *database.DB,
	templates *repository.TemplateRepository,
	instances *repository.InstanceRepository,
	logger *zap.Logger,
) *Store {
	return &Store{
		db:        db,
		templates: templates,
		instances: instances,
		logger:    logger,
	}
}

// CreateTemplate validates the authored chain and persists it atomically
func (s *Store) CreateTemplate(ctx context.Context, input CreateTemplateInput) (*entity.WorkflowTemplate, error) {
	ordered, err := validateSpecs(input.Nodes)
	if err != nil {
		return nil, err
	}
	if input.KindCode == "" {
		return nil, fmt.Errorf("%w: kind code is required", workflow.ErrInvalidTemplateShape)
	}

	tmpl := &entity.WorkflowTemplate{
		ID:        uuid.NewString(),
		KindCode:  input.KindCode,
		Comment:   input.Comment,
		CreatedAt: time.Now().UTC(),
	}

	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.templates.Create(ctx, tx, tmpl); err != nil {
			return err
		}
		return s.persistChain(ctx, tx, tmpl.ID, ordered)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Template created",
		zap.String("template_id", tmpl.ID),
		zap.String("kind_code", tmpl.KindCode),
		zap.Int("nodes", len(ordered)))
	return tmpl, nil
}

// GetTemplate returns the template and its node chain in traversal order
func (s *Store) GetTemplate(ctx context.Context, id string) (*Chain, error) {
	tmpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %s: %w", id, workflow.ErrNotFound)
	}

	nodes, err := s.templates.ListNodes(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	ordered, err := orderNodes(nodes)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}

	for _, n := range ordered {
		items, err := s.templates.ListNodeItems(ctx, nil, n.ID)
		if err != nil {
			return nil, err
		}
		n.Items = items
	}

	return &Chain{Template: tmpl, Nodes: ordered}, nil
}

// ListByKindCode returns all templates configured for a document kind. The
// store does not enforce kind-code uniqueness; callers pick among matches.
func (s *Store) ListByKindCode(ctx context.Context, kindCode string) ([]*entity.WorkflowTemplate, error) {
	return s.templates.ListByKindCode(ctx, kindCode)
}

// UpdateTemplate replaces a template's remark and chain. Editing is refused
// once any instance references the template, so running processes and audit
// history always match the blueprint they were created from.
func (s *Store) UpdateTemplate(ctx context.Context, id string, input CreateTemplateInput) error {
	ordered, err := validateSpecs(input.Nodes)
	if err != nil {
		return err
	}

	if err := s.ensureUnused(ctx, id); err != nil {
		return err
	}

	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.templates.UpdateComment(ctx, tx, id, input.Comment); err != nil {
			return err
		}
		if err := s.templates.DeleteNodes(ctx, tx, id); err != nil {
			return err
		}
		return s.persistChain(ctx, tx, id, ordered)
	})
}

// DeleteTemplate removes an unused template and its chain
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.ensureUnused(ctx, id); err != nil {
		return err
	}

	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		err := s.templates.Delete(ctx, tx, id)
		if err == sql.ErrNoRows {
			return fmt.Errorf("template %s: %w", id, workflow.ErrNotFound)
		}
		return err
	})
}

func (s *Store) ensureUnused(ctx context.Context, id string) error {
	tmpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return fmt.Errorf("template %s: %w", id, workflow.ErrNotFound)
	}

	count, err := s.instances.CountByTemplate(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("template %s has %d instance(s): %w", id, count, workflow.ErrTemplateInUse)
	}
	return nil
}

// persistChain writes ordered node specs as linked rows, assigning ids and
// next-node edges in traversal order
func (s *Store) persistChain(ctx context.Context, tx *sql.Tx, templateID string, ordered []NodeSpec) error {
	ids := make([]string, len(ordered))
	for i := range ordered {
		ids[i] = uuid.NewString()
	}

	for i, spec := range ordered {
		var next *string
		if i < len(ordered)-1 {
			next = &ids[i+1]
		}
		node := &entity.TemplateNode{
			ID:              ids[i],
			TemplateID:      templateID,
			NextNodeID:      next,
			RejectOperation: spec.RejectOperation,
		}
		if err := s.templates.CreateNode(ctx, tx, node); err != nil {
			return err
		}

		for _, operatorID := range spec.Operators {
			item := &entity.TemplateNodeItem{
				ID:         uuid.NewString(),
				NodeID:     node.ID,
				OperatorID: operatorID,
			}
			if err := s.templates.CreateNodeItem(ctx, tx, item); err != nil {
				return err
			}
		}
	}
	return nil
}

package custody

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// REGISTRY - Register and employee administration
// =============================================================================

// Registry manages the register fleet and the employee directory.
// Invariant: at most one active central register at any time; the check
// and the insert share one transaction.
type Registry struct {
	Store TxStore
	Now   func() time.Time
}

func NewRegistry(store TxStore) *Registry {
	return &Registry{Store: store, Now: time.Now}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

type CreateRegisterInput struct {
	Name     string
	Location string
	Kind     RegisterKind
}

func (r *Registry) CreateRegister(ctx context.Context, in CreateRegisterInput) (*Register, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "register name is required"}
	}
	kind := in.Kind
	if kind == "" {
		kind = RegisterOrdinary
	}
	if kind != RegisterOrdinary && kind != RegisterCentral {
		return nil, &ValidationError{Field: "kind", Message: "unknown register kind"}
	}

	reg := &Register{
		ID:        RegisterID(uuid.NewString()),
		Name:      strings.TrimSpace(in.Name),
		Location:  strings.TrimSpace(in.Location),
		Kind:      kind,
		Active:    true,
		CreatedAt: r.now(),
	}

	err := r.Store.WithTx(ctx, func(s Store) error {
		if kind == RegisterCentral {
			central, err := s.CentralRegister(ctx)
			if err != nil {
				return err
			}
			if central != nil {
				return ErrCentralRegisterExists
			}
		}
		return s.InsertRegister(ctx, *reg)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return reg, nil
}

func (r *Registry) ListRegisters(ctx context.Context) ([]Register, error) {
	regs, err := r.Store.ListRegisters(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return regs, nil
}

type CreateEmployeeInput struct {
	FullName string
	Role     string
}

func (r *Registry) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (*Employee, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, &ValidationError{Field: "full_name", Message: "employee name is required"}
	}
	emp := &Employee{
		ID:        EmployeeID(uuid.NewString()),
		FullName:  strings.TrimSpace(in.FullName),
		Role:      strings.TrimSpace(in.Role),
		Active:    true,
		CreatedAt: r.now(),
	}
	if err := r.Store.InsertEmployee(ctx, *emp); err != nil {
		return nil, storeErr(err)
	}
	return emp, nil
}

func (r *Registry) ListEmployees(ctx context.Context) ([]Employee, error) {
	emps, err := r.Store.ListEmployees(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return emps, nil
}

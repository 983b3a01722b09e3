// Package directory resolves payer records owned by the wider portal.
// Ledger code only reads display and contact fields from it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

// Payer is the subset of a student or teacher record the ledger needs.
type Payer struct {
	ID    string      `json:"id"`
	Kind  domain.Kind `json:"kind"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

// Directory looks payers up by ledger kind and id.
type Directory interface {
	Lookup(ctx context.Context, kind domain.Kind, payerID string) (Payer, error)
}

var payerTables = map[domain.Kind]string{
	domain.KindStudent: "students",
	domain.KindTeacher: "teachers",
}

// PostgresDirectory reads the portal's students and teachers tables.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, kind domain.Kind, payerID string) (Payer, error) {
	table, ok := payerTables[kind]
	if !ok {
		return Payer{}, domain.ErrInvalidKind
	}
	p := Payer{ID: payerID, Kind: kind}
	err := d.pool.QueryRow(ctx, fmt.Sprintf("SELECT name, email FROM %s WHERE id = $1", table), payerID).
		Scan(&p.Name, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payer{}, domain.ErrPayerNotFound
		}
		return Payer{}, fmt.Errorf("lookup %s %s: %w", kind, payerID, err)
	}
	return p, nil
}

// StaticDirectory serves payers from memory. It backs the memory store driver.
type StaticDirectory map[domain.Kind]map[string]Payer

func (d StaticDirectory) Add(p Payer) {
	if d[p.Kind] == nil {
		d[p.Kind] = make(map[string]Payer)
	}
	d[p.Kind][p.ID] = p
}

func (d StaticDirectory) Lookup(_ context.Context, kind domain.Kind, payerID string) (Payer, error) {
	p, ok := d[kind][payerID]
	if !ok {
		return Payer{}, domain.ErrPayerNotFound
	}
	return p, nil
}

// ParseStatic builds a StaticDirectory from "kind:id:name[:email]" specs.
func ParseStatic(specs []string) (StaticDirectory, error) {
	d := StaticDirectory{}
	for _, spec := range specs {
		parts := strings.SplitN(strings.TrimSpace(spec), ":", 4)
		if len(parts) < 3 || parts[1] == "" {
			return nil, fmt.Errorf("payer spec %q: want kind:id:name[:email]", spec)
		}
		kind := domain.Kind(parts[0])
		if !kind.Valid() {
			return nil, fmt.Errorf("payer spec %q: %w", spec, domain.ErrInvalidKind)
		}
		p := Payer{ID: parts[1], Kind: kind, Name: parts[2]}
		if len(parts) == 4 {
			p.Email = parts[3]
		}
		d.Add(p)
	}
	return d, nil
}

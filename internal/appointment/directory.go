package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	gocache "github.com/patrickmn/go-cache"
)

// Directory resolves doctor and service identifiers to display data. It is read-only.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetService(ctx context.Context, id uuid.UUID) (*ServiceType, error)
	DoctorsBySpecialization(ctx context.Context, specialization string) ([]Doctor, error)
}

type PgDirectory struct {
	db pgxIface
}

func NewPgDirectory(db pgxIface) *PgDirectory {
	if db == nil {
		panic("appointment: pgx pool required")
	}
	return &PgDirectory{db: db}
}

func (d *PgDirectory) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var doc Doctor
	err := d.db.QueryRow(ctx, `
		SELECT id, name, specialization
		FROM doctors
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.Name, &doc.Specialization)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return &doc, nil
}

func (d *PgDirectory) GetService(ctx context.Context, id uuid.UUID) (*ServiceType, error) {
	var svc ServiceType
	err := d.db.QueryRow(ctx, `
		SELECT id, name, specialization
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.Specialization)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	return &svc, nil
}

func (d *PgDirectory) DoctorsBySpecialization(ctx context.Context, specialization string) ([]Doctor, error) {
	rows, err := d.db.Query(ctx, `
		SELECT id, name, specialization
		FROM doctors
		WHERE lower(specialization) = lower($1)
		ORDER BY name
	`, specialization)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		var doc Doctor
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Specialization); err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

// CachedDirectory memoizes lookups of an underlying Directory for ttl.
// Misses are not cached.
type CachedDirectory struct {
	next  Directory
	cache *gocache.Cache
}

func NewCachedDirectory(next Directory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedDirectory) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	key := "doctor:" + id.String()
	if v, ok := c.cache.Get(key); ok {
		doc := v.(Doctor)
		return &doc, nil
	}
	doc, err := c.next.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, *doc)
	return doc, nil
}

func (c *CachedDirectory) GetService(ctx context.Context, id uuid.UUID) (*ServiceType, error) {
	key := "service:" + id.String()
	if v, ok := c.cache.Get(key); ok {
		svc := v.(ServiceType)
		return &svc, nil
	}
	svc, err := c.next.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, *svc)
	return svc, nil
}

func (c *CachedDirectory) DoctorsBySpecialization(ctx context.Context, specialization string) ([]Doctor, error) {
	key := "specialization:" + specialization
	if v, ok := c.cache.Get(key); ok {
		return append([]Doctor(nil), v.([]Doctor)...), nil
	}
	docs, err := c.next.DoctorsBySpecialization(ctx, specialization)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, append([]Doctor(nil), docs...))
	return docs, nil
}

package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/catalogd/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.Store using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)
	if s.cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// GetWorkItem retrieves a work item by ID
func (s *SQLiteStore) GetWorkItem(ctx context.Context, id string) (*engine.WorkItem, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM work_items WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("work item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}

	return decodeWorkItem(payload)
}

// SaveWorkItem inserts or replaces a work item
func (s *SQLiteStore) SaveWorkItem(ctx context.Context, item *engine.WorkItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("work item id is required")
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode work item: %w", err)
	}

	var dispatchedAt *string
	if item.DispatchedAt != nil {
		v := formatTime(*item.DispatchedAt)
		dispatchedAt = &v
	}

	query := `
		INSERT INTO work_items (id, kind, operation, service_id, next_id, payload, requested_at, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			operation = excluded.operation,
			service_id = excluded.service_id,
			next_id = excluded.next_id,
			payload = excluded.payload,
			requested_at = excluded.requested_at,
			dispatched_at = excluded.dispatched_at
	`

	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		string(item.Kind),
		string(item.Operation),
		item.Service.ID,
		item.NextID,
		string(payload),
		formatTime(item.RequestedAt),
		dispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save work item: %w", err)
	}

	return nil
}

// DeleteWorkItem removes a work item
func (s *SQLiteStore) DeleteWorkItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete work item: %w", err)
	}
	return requireAffected(result, "work item "+id)
}

// ListWorkItems returns all work items ordered by request time
func (s *SQLiteStore) ListWorkItems(ctx context.Context) ([]*engine.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM work_items ORDER BY requested_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []*engine.WorkItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		item, err := decodeWorkItem(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func decodeWorkItem(payload string) (*engine.WorkItem, error) {
	item := &engine.WorkItem{}
	if err := json.Unmarshal([]byte(payload), item); err != nil {
		return nil, fmt.Errorf("failed to decode work item: %w", err)
	}
	return item, nil
}

const hostColumns = `id, service_id, module_id, name, data_center, network, env, size, status, created_at, updated_at`

// GetHost retrieves a host of a service
func (s *SQLiteStore) GetHost(ctx context.Context, serviceID, hostID string) (*engine.Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE service_id = ? AND id = ?`

	host, err := scanHost(s.db.QueryRowContext(ctx, query, serviceID, hostID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("host %s: %w", hostID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	return host, nil
}

// ListHosts returns the hosts of a service ordered by name
func (s *SQLiteStore) ListHosts(ctx context.Context, serviceID string) ([]*engine.Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE service_id = ? ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*engine.Host
	for rows.Next() {
		host, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}

	return hosts, rows.Err()
}

// SaveHost inserts or replaces a host
func (s *SQLiteStore) SaveHost(ctx context.Context, host *engine.Host) error {
	if host == nil || host.ID == "" {
		return fmt.Errorf("host id is required")
	}

	query := `
		INSERT OR REPLACE INTO hosts (` + hostColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		host.ID,
		host.ServiceID,
		host.ModuleID,
		host.Name,
		host.DataCenter,
		host.Network,
		host.Env,
		host.Size,
		host.Status,
		formatTime(host.CreatedAt),
		formatTime(host.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save host: %w", err)
	}

	return nil
}

// UpdateHost updates an existing host
func (s *SQLiteStore) UpdateHost(ctx context.Context, host *engine.Host) error {
	query := `
		UPDATE hosts
		SET service_id = ?, module_id = ?, name = ?, data_center = ?, network = ?, env = ?, size = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		host.ServiceID,
		host.ModuleID,
		host.Name,
		host.DataCenter,
		host.Network,
		host.Env,
		host.Size,
		host.Status,
		formatTime(host.UpdatedAt),
		host.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}
	return requireAffected(result, "host "+host.ID)
}

// DeleteHost removes a host of a service
func (s *SQLiteStore) DeleteHost(ctx context.Context, serviceID, hostID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM hosts WHERE service_id = ? AND id = ?`, serviceID, hostID)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	return requireAffected(result, "host "+hostID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHost(row rowScanner) (*engine.Host, error) {
	host := &engine.Host{}
	var createdAt, updatedAt string
	err := row.Scan(
		&host.ID,
		&host.ServiceID,
		&host.ModuleID,
		&host.Name,
		&host.DataCenter,
		&host.Network,
		&host.Env,
		&host.Size,
		&host.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if host.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if host.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return host, nil
}

const endpointColumns = `id, service_id, name, network, protocol, vip_port, service_port, external, status, created_at, updated_at`

// GetEndpoint retrieves an endpoint of a service
func (s *SQLiteStore) GetEndpoint(ctx context.Context, serviceID, endpointID string) (*engine.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE service_id = ? AND id = ?`

	endpoint, err := scanEndpoint(s.db.QueryRowContext(ctx, query, serviceID, endpointID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}
	return endpoint, nil
}

// ListEndpoints returns the endpoints of a service ordered by name
func (s *SQLiteStore) ListEndpoints(ctx context.Context, serviceID string) ([]*engine.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE service_id = ? ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*engine.Endpoint
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

// SaveEndpoint inserts or replaces an endpoint
func (s *SQLiteStore) SaveEndpoint(ctx context.Context, endpoint *engine.Endpoint) error {
	if endpoint == nil || endpoint.ID == "" {
		return fmt.Errorf("endpoint id is required")
	}

	query := `
		INSERT OR REPLACE INTO endpoints (` + endpointColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.ServiceID,
		endpoint.Name,
		endpoint.Network,
		endpoint.Protocol,
		endpoint.VIPPort,
		endpoint.ServicePort,
		endpoint.External,
		endpoint.Status,
		formatTime(endpoint.CreatedAt),
		formatTime(endpoint.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save endpoint: %w", err)
	}

	return nil
}

// UpdateEndpoint updates an existing endpoint
func (s *SQLiteStore) UpdateEndpoint(ctx context.Context, endpoint *engine.Endpoint) error {
	query := `
		UPDATE endpoints
		SET service_id = ?, name = ?, network = ?, protocol = ?, vip_port = ?, service_port = ?, external = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		endpoint.ServiceID,
		endpoint.Name,
		endpoint.Network,
		endpoint.Protocol,
		endpoint.VIPPort,
		endpoint.ServicePort,
		endpoint.External,
		endpoint.Status,
		formatTime(endpoint.UpdatedAt),
		endpoint.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update endpoint: %w", err)
	}
	return requireAffected(result, "endpoint "+endpoint.ID)
}

// DeleteEndpoint removes an endpoint of a service
func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, serviceID, endpointID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE service_id = ? AND id = ?`, serviceID, endpointID)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	return requireAffected(result, "endpoint "+endpointID)
}

func scanEndpoint(row rowScanner) (*engine.Endpoint, error) {
	endpoint := &engine.Endpoint{}
	var createdAt, updatedAt string
	err := row.Scan(
		&endpoint.ID,
		&endpoint.ServiceID,
		&endpoint.Name,
		&endpoint.Network,
		&endpoint.Protocol,
		&endpoint.VIPPort,
		&endpoint.ServicePort,
		&endpoint.External,
		&endpoint.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endpoint.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if endpoint.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return endpoint, nil
}

// GetMembershipRef retrieves the membership of a host in an endpoint
func (s *SQLiteStore) GetMembershipRef(ctx context.Context, hostID, endpointID string) (*engine.MembershipRef, error) {
	query := `SELECT host_id, endpoint_id, status FROM membership_refs WHERE host_id = ? AND endpoint_id = ?`

	ref := &engine.MembershipRef{}
	err := s.db.QueryRowContext(ctx, query, hostID, endpointID).Scan(&ref.HostID, &ref.EndpointID, &ref.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("membership %s/%s: %w", hostID, endpointID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return ref, nil
}

// ListMembershipRefs returns the memberships of an endpoint ordered by host
func (s *SQLiteStore) ListMembershipRefs(ctx context.Context, endpointID string) ([]*engine.MembershipRef, error) {
	query := `SELECT host_id, endpoint_id, status FROM membership_refs WHERE endpoint_id = ? ORDER BY host_id`

	rows, err := s.db.QueryContext(ctx, query, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var refs []*engine.MembershipRef
	for rows.Next() {
		ref := &engine.MembershipRef{}
		if err := rows.Scan(&ref.HostID, &ref.EndpointID, &ref.Status); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// SaveMembershipRef inserts or replaces a membership
func (s *SQLiteStore) SaveMembershipRef(ctx context.Context, ref *engine.MembershipRef) error {
	if ref == nil || ref.HostID == "" || ref.EndpointID == "" {
		return fmt.Errorf("membership host id and endpoint id are required")
	}

	query := `INSERT OR REPLACE INTO membership_refs (host_id, endpoint_id, status) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, ref.HostID, ref.EndpointID, ref.Status); err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

// UpdateMembershipRef updates an existing membership
func (s *SQLiteStore) UpdateMembershipRef(ctx context.Context, ref *engine.MembershipRef) error {
	query := `UPDATE membership_refs SET status = ? WHERE host_id = ? AND endpoint_id = ?`

	result, err := s.db.ExecContext(ctx, query, ref.Status, ref.HostID, ref.EndpointID)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return requireAffected(result, "membership "+ref.HostID+"/"+ref.EndpointID)
}

// DeleteMembershipRef removes a membership
func (s *SQLiteStore) DeleteMembershipRef(ctx context.Context, hostID, endpointID string) error {
	query := `DELETE FROM membership_refs WHERE host_id = ? AND endpoint_id = ?`

	result, err := s.db.ExecContext(ctx, query, hostID, endpointID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return requireAffected(result, "membership "+hostID+"/"+endpointID)
}

// DeleteMembershipRefsByEndpoint removes every membership of an endpoint
func (s *SQLiteStore) DeleteMembershipRefsByEndpoint(ctx context.Context, endpointID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM membership_refs WHERE endpoint_id = ?`, endpointID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID
func (s *SQLiteStore) GetTeam(ctx context.Context, teamID string) (*engine.Team, error) {
	team := &engine.Team{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM teams WHERE id = ?`, teamID).Scan(&team.ID, &team.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// SaveTeam inserts or replaces a team
func (s *SQLiteStore) SaveTeam(ctx context.Context, team *engine.Team) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO teams (id, name) VALUES (?, ?)`, team.ID, team.Name); err != nil {
		return fmt.Errorf("failed to save team: %w", err)
	}
	return nil
}

// GetService retrieves a service by ID
func (s *SQLiteStore) GetService(ctx context.Context, serviceID string) (*engine.Service, error) {
	query := `SELECT id, team_id, name, abbr FROM services WHERE id = ?`

	service := &engine.Service{}
	err := s.db.QueryRowContext(ctx, query, serviceID).Scan(&service.ID, &service.TeamID, &service.Name, &service.Abbr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return service, nil
}

// SaveService inserts or replaces a service
func (s *SQLiteStore) SaveService(ctx context.Context, service *engine.Service) error {
	query := `INSERT OR REPLACE INTO services (id, team_id, name, abbr) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, service.ID, service.TeamID, service.Name, service.Abbr); err != nil {
		return fmt.Errorf("failed to save service: %w", err)
	}
	return nil
}

// ListServices returns every service ordered by id
func (s *SQLiteStore) ListServices(ctx context.Context) ([]*engine.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, team_id, name, abbr FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*engine.Service
	for rows.Next() {
		service := &engine.Service{}
		if err := rows.Scan(&service.ID, &service.TeamID, &service.Name, &service.Abbr); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, service)
	}
	return services, rows.Err()
}

// GetModule retrieves a module of a service
func (s *SQLiteStore) GetModule(ctx context.Context, serviceID, moduleID string) (*engine.Module, error) {
	query := `SELECT id, service_id, name, host_abbr, template, type FROM modules WHERE service_id = ? AND id = ?`

	module := &engine.Module{}
	err := s.db.QueryRowContext(ctx, query, serviceID, moduleID).Scan(
		&module.ID,
		&module.ServiceID,
		&module.Name,
		&module.HostAbbr,
		&module.Template,
		&module.Type,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("module %s: %w", moduleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return module, nil
}

// SaveModule inserts or replaces a module
func (s *SQLiteStore) SaveModule(ctx context.Context, module *engine.Module) error {
	query := `
		INSERT OR REPLACE INTO modules (id, service_id, name, host_abbr, template, type)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		module.ID,
		module.ServiceID,
		module.Name,
		module.HostAbbr,
		module.Template,
		module.Type,
	)
	if err != nil {
		return fmt.Errorf("failed to save module: %w", err)
	}
	return nil
}

// ListModules returns the modules of a service ordered by id
func (s *SQLiteStore) ListModules(ctx context.Context, serviceID string) ([]*engine.Module, error) {
	query := `SELECT id, service_id, name, host_abbr, template, type FROM modules WHERE service_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []*engine.Module
	for rows.Next() {
		module := &engine.Module{}
		if err := rows.Scan(&module.ID, &module.ServiceID, &module.Name, &module.HostAbbr, &module.Template, &module.Type); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

// SaveAudit appends an audit record with the raw executor output
func (s *SQLiteStore) SaveAudit(ctx context.Context, audit *engine.Audit, output string) error {
	query := `
		INSERT INTO audits (id, service_id, requestor, requested_at, performed_at, kind, operation,
			module_name, host_name, endpoint_name, notes, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		audit.ID,
		audit.ServiceID,
		audit.Requestor,
		formatTime(audit.RequestedAt),
		formatTime(audit.PerformedAt),
		string(audit.Kind),
		string(audit.Operation),
		audit.ModuleName,
		audit.HostName,
		audit.EndpointName,
		audit.Notes,
		output,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit: %w", err)
	}
	return nil
}

// ListAudits returns the audit records of a service in insertion order
func (s *SQLiteStore) ListAudits(ctx context.Context, serviceID string) ([]*engine.Audit, error) {
	query := `
		SELECT id, service_id, requestor, requested_at, performed_at, kind, operation,
			module_name, host_name, endpoint_name, notes
		FROM audits
		WHERE service_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	defer rows.Close()

	var audits []*engine.Audit
	for rows.Next() {
		audit := &engine.Audit{}
		var requestedAt, performedAt, kind, operation string
		err := rows.Scan(
			&audit.ID,
			&audit.ServiceID,
			&audit.Requestor,
			&requestedAt,
			&performedAt,
			&kind,
			&operation,
			&audit.ModuleName,
			&audit.HostName,
			&audit.EndpointName,
			&audit.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		audit.Kind = engine.Kind(kind)
		audit.Operation = engine.Operation(operation)
		if audit.RequestedAt, err = parseTime(requestedAt); err != nil {
			return nil, err
		}
		if audit.PerformedAt, err = parseTime(performedAt); err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	return audits, rows.Err()
}

// AuditOutput returns the executor output stored with an audit record
func (s *SQLiteStore) AuditOutput(ctx context.Context, auditID string) (string, error) {
	var output string
	err := s.db.QueryRowContext(ctx, `SELECT output FROM audits WHERE id = ? ORDER BY seq DESC LIMIT 1`, auditID).Scan(&output)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("audit %s: %w", auditID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get audit output: %w", err)
	}
	return output, nil
}

func requireAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

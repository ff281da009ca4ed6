package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
	"github.com/openfroyo/catalogd/pkg/telemetry"
)

// backfillFields is the column count of a backfill file:
// service abbreviation, module name, host name, data center, network, env, size.
const backfillFields = 7

// BackfillRow registers one host that already exists outside the catalog.
type BackfillRow struct {
	ServiceAbbr string `json:"serviceAbbr" validate:"required"`
	ModuleName  string `json:"moduleName" validate:"required"`
	HostName    string `json:"hostName" validate:"required"`
	DataCenter  string `json:"dataCenter" validate:"required"`
	Network     string `json:"network" validate:"required"`
	Env         string `json:"env" validate:"required"`
	Size        string `json:"size" validate:"required"`
}

// BackfillRequest registers existing hosts without dispatching any work.
type BackfillRequest struct {
	Requestor engine.Requestor `json:"requestor"`
	Rows      []BackfillRow    `json:"rows" validate:"required,min=1,dive"`
}

// BackfillSkip explains why a row was not registered.
type BackfillSkip struct {
	Row      int    `json:"row"`
	HostName string `json:"hostName"`
	Reason   string `json:"reason"`
}

// BackfillResult lists the hosts a backfill registered and the rows it passed over.
type BackfillResult struct {
	HostIDs []string       `json:"host_ids"`
	Skipped []BackfillSkip `json:"skipped,omitempty"`
}

// ParseBackfill reads backfill rows from comma separated input. Blank lines are ignored.
func ParseBackfill(r io.Reader) ([]BackfillRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []BackfillRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, engine.NewValidationError("malformed backfill input", err).WithCode(engine.ErrCodeValidation)
		}
		line, _ := reader.FieldPos(0)
		if len(record) != backfillFields {
			return nil, engine.NewValidationError(
				fmt.Sprintf("line %d has %d fields, want %d", line, len(record), backfillFields), nil).
				WithCode(engine.ErrCodeValidation)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		rows = append(rows, BackfillRow{
			ServiceAbbr: record[0],
			ModuleName:  record[1],
			HostName:    record[2],
			DataCenter:  record[3],
			Network:     record[4],
			Env:         record[5],
			Size:        record[6],
		})
	}
	return rows, nil
}

// BackfillHosts records hosts that were provisioned outside catalogd. Each host is saved idle
// and audited as a create; no work item is dispatched. Rows naming unknown catalog options,
// an unknown service or module, or an existing host name are skipped.
func (s *Service) BackfillHosts(ctx context.Context, req BackfillRequest) (result *BackfillResult, err error) {
	op := telemetry.StartOperation(ctx, "catalog.backfill_hosts")
	defer func() { op.End(err) }()
	ctx = op.Ctx

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	services, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	notes, err := json.Marshal(map[string]string{"reason": "Backfill via OPS tool."})
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit notes: %w", err)
	}

	opts := s.Options()
	result = &BackfillResult{}
	for i, row := range req.Rows {
		skip := func(reason string) {
			s.logger.Warn().Int("row", i+1).Str("host", row.HostName).Str("reason", reason).Msg("Skipping backfill row")
			result.Skipped = append(result.Skipped, BackfillSkip{Row: i + 1, HostName: row.HostName, Reason: reason})
		}

		if reason := unknownOption(opts, row); reason != "" {
			skip(reason)
			continue
		}

		service := findService(services, row.ServiceAbbr)
		if service == nil {
			skip(fmt.Sprintf("unknown service %q", row.ServiceAbbr))
			continue
		}

		hosts, err := s.store.ListHosts(ctx, service.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list hosts of service %s: %w", service.ID, err)
		}
		if hostNamed(hosts, row.HostName) {
			skip(fmt.Sprintf("host already exists on service %s", service.Abbr))
			continue
		}

		modules, err := s.store.ListModules(ctx, service.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list modules of service %s: %w", service.ID, err)
		}
		module := findModule(modules, row.ModuleName)
		if module == nil {
			skip(fmt.Sprintf("unknown module %q", row.ModuleName))
			continue
		}

		now := s.now()
		host := &engine.Host{
			ID:         uuid.New().String(),
			Name:       row.HostName,
			ServiceID:  service.ID,
			ModuleID:   module.ID,
			DataCenter: row.DataCenter,
			Network:    row.Network,
			Env:        row.Env,
			Size:       row.Size,
			Status:     engine.StatusIdle,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.SaveHost(ctx, host); err != nil {
			return nil, fmt.Errorf("failed to save host %s: %w", host.Name, err)
		}

		audit := &engine.Audit{
			ID:          uuid.New().String(),
			ServiceID:   service.ID,
			Requestor:   req.Requestor.Username,
			RequestedAt: now,
			PerformedAt: now,
			Kind:        engine.KindHost,
			Operation:   engine.OperationCreate,
			ModuleName:  module.Name,
			HostName:    host.Name,
			Notes:       string(notes),
		}
		if err := s.store.SaveAudit(ctx, audit, ""); err != nil {
			return nil, fmt.Errorf("failed to save audit for host %s: %w", host.Name, err)
		}
		result.HostIDs = append(result.HostIDs, host.ID)
	}

	s.logger.Info().
		Int("registered", len(result.HostIDs)).
		Int("skipped", len(result.Skipped)).
		Msg("Host backfill finished")
	return result, nil
}

func unknownOption(opts config.CatalogConfig, row BackfillRow) string {
	for _, check := range []struct {
		what    string
		value   string
		options []string
	}{
		{"data center", row.DataCenter, opts.DataCenters},
		{"network", row.Network, opts.Networks},
		{"env", row.Env, opts.Envs},
		{"size", row.Size, opts.Sizes},
	} {
		if !config.Contains(check.options, check.value) {
			return fmt.Sprintf("unknown %s %q", check.what, check.value)
		}
	}
	return ""
}

func findService(services []*engine.Service, abbr string) *engine.Service {
	for _, service := range services {
		if strings.EqualFold(service.Abbr, abbr) {
			return service
		}
	}
	return nil
}

func findModule(modules []*engine.Module, name string) *engine.Module {
	for _, module := range modules {
		if strings.EqualFold(module.Name, name) {
			return module
		}
	}
	return nil
}

func hostNamed(hosts []*engine.Host, name string) bool {
	for _, host := range hosts {
		if strings.EqualFold(host.Name, name) {
			return true
		}
	}
	return false
}
